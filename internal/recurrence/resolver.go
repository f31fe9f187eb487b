package recurrence

import (
	"sync/atomic"
	"time"

	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/models"
)

const (
	// DefaultMaxEntries bounds the instance cache.
	DefaultMaxEntries = 100
	// DefaultEvictFraction is the share of entries dropped under pressure.
	DefaultEvictFraction = 0.2
	// SearchHorizonDays bounds the forward scan of NextInstance.
	SearchHorizonDays = 366
	// DaysPerWeek is the width of one resolver window.
	DaysPerWeek = 7
)

// Options configures a Resolver.
type Options struct {
	MaxEntries    int
	EvictFraction float64
	// FirstDayOfWeek is used by InstancesForDate to find the enclosing week.
	FirstDayOfWeek time.Weekday
	// Cache overrides the default LRU cache.
	Cache Cache
}

// CacheStats is a point-in-time view of resolver cache behavior.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	// Evictions counts entries dropped for size. Zero for custom caches.
	Evictions int `json:"evictions"`
}

// Resolver expands tasks into instances over weekly windows and memoizes the
// result per (task-id set, week start).
type Resolver struct {
	cache    Cache
	firstDay time.Weekday
	hits     atomic.Int64
	misses   atomic.Int64
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	cache := opts.Cache
	if cache == nil {
		cache = NewLRUCache(opts.MaxEntries, opts.EvictFraction)
	}
	return &Resolver{
		cache:    cache,
		firstDay: opts.FirstDayOfWeek,
	}
}

// Generation returns the cache's invalidation counter. Callers that load
// tasks from a store read it first and pass it to InstancesForWeekAt, so a
// list loaded before a concurrent invalidation is never cached.
func (r *Resolver) Generation() uint64 {
	return r.cache.Generation()
}

// InstancesForWeek returns the instances of tasks on the seven days starting
// at weekStart, ordered by day and then by input order. Repeated calls with
// the same task ids and week are served from the cache.
func (r *Resolver) InstancesForWeek(tasks []models.Task, weekStart calendar.Date) []models.Instance {
	return r.InstancesForWeekAt(r.Generation(), tasks, weekStart)
}

// InstancesForWeekAt is InstancesForWeek for tasks loaded at cache
// generation gen. The result is only cached if no invalidation ran since.
func (r *Resolver) InstancesForWeekAt(gen uint64, tasks []models.Task, weekStart calendar.Date) []models.Instance {
	key, ids := Fingerprint(tasks, weekStart)
	if cached, ok := r.cache.Get(key); ok {
		r.hits.Add(1)
		return cloneInstances(cached)
	}
	r.misses.Add(1)

	out := expand(tasks, weekStart, DaysPerWeek)
	r.cache.Put(key, gen, ids, cloneInstances(out))
	return out
}

// InstancesForDate returns the instances that fall on date. It goes through
// the cached week enclosing date.
func (r *Resolver) InstancesForDate(tasks []models.Task, date calendar.Date) []models.Instance {
	week := r.InstancesForWeek(tasks, calendar.StartOfWeek(date, r.firstDay))
	out := make([]models.Instance, 0, len(week))
	for _, inst := range week {
		if inst.Date == date {
			out = append(out, inst)
		}
	}
	return out
}

// InstancesForRange expands tasks over days consecutive days from start,
// bypassing the cache.
func (r *Resolver) InstancesForRange(tasks []models.Task, start calendar.Date, days int) []models.Instance {
	return expand(tasks, start, days)
}

// NextInstance returns the next date task is due on or after from.
//
// One-off tasks return their stored due date as-is, even when it lies in the
// past. Recurring tasks are scanned day by day for SearchHorizonDays days.
// The second result is false when there is no such date.
func (r *Resolver) NextInstance(task models.Task, from calendar.Date) (calendar.Date, bool) {
	return NextInstance(task, from)
}

// NextInstance is the cache-free form of Resolver.NextInstance.
func NextInstance(task models.Task, from calendar.Date) (calendar.Date, bool) {
	switch task.Type {
	case models.TaskTypeOneOff:
		if task.DueDate == nil {
			return calendar.Date{}, false
		}
		return *task.DueDate, true
	case models.TaskTypeRecurring:
		if task.Recurrence == nil {
			return calendar.Date{}, false
		}
		for i := 0; i < SearchHorizonDays; i++ {
			d := from.AddDays(i)
			if Matches(*task.Recurrence, d) {
				return d, true
			}
		}
	}
	return calendar.Date{}, false
}

// InvalidateCache drops cached windows. With no ids every entry is dropped;
// otherwise only entries whose task set contains one of ids.
func (r *Resolver) InvalidateCache(ids ...string) {
	if len(ids) == 0 {
		r.cache.Purge()
		return
	}
	r.cache.Evict(ids...)
}

// ClearCache drops every cached window.
func (r *Resolver) ClearCache() {
	r.cache.Purge()
}

// Stats reports cache size and hit counters.
func (r *Resolver) Stats() CacheStats {
	stats := CacheStats{
		Entries: r.cache.Len(),
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
	}
	if lru, ok := r.cache.(*LRUCache); ok {
		stats.Evictions = lru.Evictions()
	}
	return stats
}

func expand(tasks []models.Task, start calendar.Date, days int) []models.Instance {
	out := make([]models.Instance, 0)
	for i := 0; i < days; i++ {
		day := start.AddDays(i)
		for _, task := range tasks {
			if IsActiveOn(task, day) {
				out = append(out, models.Instance{Task: task, Date: day})
			}
		}
	}
	return out
}

func cloneInstances(in []models.Instance) []models.Instance {
	out := make([]models.Instance, len(in))
	for i, inst := range in {
		out[i] = models.Instance{Task: inst.Task.Clone(), Date: inst.Date}
	}
	return out
}
