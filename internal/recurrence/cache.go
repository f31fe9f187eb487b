package recurrence

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/models"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Cache stores computed instance lists under a task-set fingerprint.
type Cache interface {
	Get(key string) ([]models.Instance, bool)
	// Generation advances on every Evict and Purge.
	Generation() uint64
	// Put stores instances under key unless the generation has moved past
	// gen, and reports whether it did.
	Put(key string, gen uint64, ids []string, instances []models.Instance) bool
	// Evict removes every entry whose task set includes one of ids and
	// returns how many entries were removed.
	Evict(ids ...string) int
	Purge()
	Len() int
}

// Fingerprint returns the cache key for a task set and a window start. The
// returned ids are the sorted task ids the key was built from.
func Fingerprint(tasks []models.Task, weekStart calendar.Date) (string, []string) {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		// Length-prefixed so no id can collide with a join of others.
		b.WriteString(strconv.Itoa(len(id)))
		b.WriteByte(':')
		b.WriteString(id)
		b.WriteByte(';')
	}
	b.WriteByte('@')
	b.WriteString(weekStart.String())
	return b.String(), ids
}

type cacheEntry struct {
	ids       []string
	instances []models.Instance
}

// LRUCache is a bounded least-recently-used Cache. When it grows past its
// limit, the least recently used fraction of entries is dropped in a single
// pass. An id -> keys index backs Evict.
type LRUCache struct {
	mu            sync.Mutex
	lru           *simplelru.LRU[string, cacheEntry]
	index         map[string]map[string]struct{}
	maxEntries    int
	evictFraction float64
	evictions     int
	generation    uint64
}

// NewLRUCache creates a cache bounded to maxEntries. evictFraction is the
// share of entries dropped when the bound is exceeded.
func NewLRUCache(maxEntries int, evictFraction float64) *LRUCache {
	if maxEntries < 1 {
		maxEntries = DefaultMaxEntries
	}
	if evictFraction <= 0 || evictFraction > 1 {
		evictFraction = DefaultEvictFraction
	}

	c := &LRUCache{
		index:         make(map[string]map[string]struct{}),
		maxEntries:    maxEntries,
		evictFraction: evictFraction,
	}
	// One slot of headroom: the overflow is handled by trim, never by the
	// LRU's own single-entry eviction.
	lru, _ := simplelru.NewLRU[string, cacheEntry](maxEntries+1, c.onEvict)
	c.lru = lru
	return c
}

func (c *LRUCache) onEvict(key string, e cacheEntry) {
	for _, id := range e.ids {
		keys := c.index[id]
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.index, id)
		}
	}
}

// Get returns the cached list for key and marks it recently used.
func (c *LRUCache) Get(key string) ([]models.Instance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return e.instances, true
}

// Generation returns the invalidation counter.
func (c *LRUCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Put stores instances under key and trims the cache if it is over its bound.
// A result computed before an invalidation is dropped.
func (c *LRUCache) Put(key string, gen uint64, ids []string, instances []models.Instance) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return false
	}
	c.lru.Add(key, cacheEntry{ids: ids, instances: instances})
	for _, id := range ids {
		keys, ok := c.index[id]
		if !ok {
			keys = make(map[string]struct{})
			c.index[id] = keys
		}
		keys[key] = struct{}{}
	}
	c.trim()
	return true
}

func (c *LRUCache) trim() {
	n := c.lru.Len()
	if n <= c.maxEntries {
		return
	}
	drop := int(float64(n) * c.evictFraction)
	if drop < 1 {
		drop = 1
	}
	for i := 0; i < drop; i++ {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
		c.evictions++
	}
}

// Evict removes every entry that references any of ids.
func (c *LRUCache) Evict(ids ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	var keys []string
	for _, id := range ids {
		for key := range c.index[id] {
			keys = append(keys, key)
		}
	}
	removed := 0
	for _, key := range keys {
		if c.lru.Remove(key) {
			removed++
		}
	}
	return removed
}

// Purge drops every entry.
func (c *LRUCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.lru.Purge()
	c.index = make(map[string]map[string]struct{})
}

// Len returns the number of cached entries.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns the cached keys from least to most recently used.
func (c *LRUCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Evictions returns how many entries were dropped for size.
func (c *LRUCache) Evictions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}
