package reminders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/models"
	"github.com/fentz26/familydash/internal/recurrence"
)

// Reminder announces one upcoming task instance.
type Reminder struct {
	TaskID   string          `json:"task_id"`
	Title    string          `json:"title"`
	Assignee string          `json:"assignee,omitempty"`
	Category models.Category `json:"category,omitempty"`
	Date     calendar.Date   `json:"date"`
	Due      time.Time       `json:"due"`
	FireAt   time.Time       `json:"fire_at"`
}

func (r Reminder) key() string {
	return r.TaskID + "@" + r.Date.String()
}

// Notifier delivers reminders.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, r Reminder) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, r Reminder) error {
	return f(ctx, r)
}

// LogNotifier writes reminders to a logger.
type LogNotifier struct {
	Logger *log.Logger
}

// Notify logs r.
func (n LogNotifier) Notify(_ context.Context, r Reminder) error {
	n.Logger.Info("reminder", "task", r.Title, "assignee", r.Assignee, "due", r.Due.Format("Mon 15:04"))
	return nil
}

// Source supplies tasks and completion state.
type Source interface {
	ListTasks() ([]models.Task, error)
	IsCompleted(taskID string, date calendar.Date) (bool, error)
}

// Scheduler sweeps upcoming instances and fires reminders once their lead
// time is reached.
type Scheduler struct {
	source   Source
	resolver *recurrence.Resolver
	notifier Notifier
	config   *Config
	logger   *log.Logger
	now      func() time.Time
	loc      *time.Location

	mu        sync.Mutex
	delivered map[string]calendar.Date

	reschedule chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Options holds optional Scheduler dependencies.
type Options struct {
	Logger   *log.Logger
	Now      func() time.Time
	Location *time.Location
}

// New creates a reminder scheduler.
func New(src Source, resolver *recurrence.Resolver, n Notifier, cfg *Config, opts Options) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if n == nil {
		n = LogNotifier{Logger: opts.Logger}
	}
	return &Scheduler{
		source:     src,
		resolver:   resolver,
		notifier:   n,
		config:     cfg,
		logger:     opts.Logger,
		now:        opts.Now,
		loc:        opts.Location,
		delivered:  make(map[string]calendar.Date),
		reschedule: make(chan struct{}, 1),
	}
}

// Start begins the sweep loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(s.ctx)
	s.logger.Info("reminders started", "sweep", s.config.SweepInterval)
}

// Stop halts the loop and waits for an in-flight sweep.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("reminders stopped")
}

// Reschedule requests a sweep after the task set changed.
func (s *Scheduler) Reschedule() {
	select {
	case s.reschedule <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		case <-s.reschedule:
			s.Sweep(ctx)
		}
	}
}

// Upcoming plans the reminders for instances due within the configured
// windows of now, ordered by fire time. Completed instances are skipped.
func (s *Scheduler) Upcoming(now time.Time) ([]Reminder, error) {
	tasks, err := s.source.ListTasks()
	if err != nil {
		return nil, err
	}

	window := s.config.TaskWindow
	if s.config.MealWindow > window {
		window = s.config.MealWindow
	}
	today := calendar.FromTime(now.In(s.loc))
	days := int(window/(24*time.Hour)) + 2

	var out []Reminder
	for _, inst := range s.resolver.InstancesForRange(tasks, today, days) {
		lead, win, at := s.config.TaskLead, s.config.TaskWindow, s.config.TaskDueAt
		if inst.Task.Category == models.CategoryMeals {
			lead, win, at = s.config.MealLead, s.config.MealWindow, s.config.MealDueAt
		}
		due := inst.Date.In(s.loc).Add(at)
		if !due.After(now) || due.Sub(now) > win {
			continue
		}
		done, err := s.source.IsCompleted(inst.Task.ID, inst.Date)
		if err != nil {
			return nil, err
		}
		if done {
			continue
		}
		out = append(out, Reminder{
			TaskID:   inst.Task.ID,
			Title:    inst.Task.Title,
			Assignee: inst.Task.AssignedTo,
			Category: inst.Task.Category,
			Date:     inst.Date,
			Due:      due,
			FireAt:   due.Add(-lead),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}

// Sweep delivers every reminder whose fire time has passed and that has not
// been delivered yet. It returns the number delivered.
func (s *Scheduler) Sweep(ctx context.Context) int {
	if !s.config.Enabled {
		return 0
	}
	now := s.now()
	planned, err := s.Upcoming(now)
	if err != nil {
		s.logger.Warn("reminder sweep failed", "err", err)
		return 0
	}

	today := calendar.FromTime(now.In(s.loc))
	s.mu.Lock()
	for k, d := range s.delivered {
		if d.Before(today) {
			delete(s.delivered, k)
		}
	}
	var due []Reminder
	for _, r := range planned {
		if r.FireAt.After(now) {
			break
		}
		if _, ok := s.delivered[r.key()]; ok {
			continue
		}
		due = append(due, r)
	}
	s.mu.Unlock()

	sent := 0
	for _, r := range due {
		if err := s.notifier.Notify(ctx, r); err != nil {
			s.logger.Warn("reminder delivery failed", "task", r.TaskID, "err", err)
			continue
		}
		s.mu.Lock()
		s.delivered[r.key()] = r.Date
		s.mu.Unlock()
		sent++
	}
	return sent
}
