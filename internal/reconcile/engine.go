package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fentz26/familydash/internal/events"
	"github.com/fentz26/familydash/internal/models"
	"github.com/fentz26/familydash/internal/syncstate"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultPassTimeout = 30 * time.Second
)

// Collaborator is the CRUD contract of the authoritative task store.
type Collaborator interface {
	GetTasks(ctx context.Context) ([]models.Task, error)
	CreateTask(ctx context.Context, t models.Task) (models.Task, error)
	UpdateTask(ctx context.Context, t models.Task) (models.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Snapshot persists the last merged task list on this device.
type Snapshot interface {
	Load(ctx context.Context) ([]models.Task, error)
	Save(ctx context.Context, tasks []models.Task) error
}

// Publisher receives the aggregate tasks_synced event.
type Publisher interface {
	Publish(t events.Type, data any)
}

// Recorder writes an audit record for each pass.
type Recorder interface {
	Record(action string, inputs any, outcome, taskID, details string) (*models.AuditEntry, error)
}

// Options configures an Engine.
type Options struct {
	Interval    time.Duration
	PassTimeout time.Duration
	Machine     *syncstate.Machine
	Publisher   Publisher
	Recorder    Recorder
	Logger      *log.Logger
	Now         func() time.Time
}

// Report summarizes one pass.
type Report struct {
	Remote     int  `json:"remote"`
	Local      int  `json:"local"`
	Merged     int  `json:"merged"`
	Pushed     int  `json:"pushed"`
	PushFailed int  `json:"push_failed"`
	Emitted    bool `json:"emitted"`
}

// Engine runs reconciliation passes on an interval and on demand.
type Engine struct {
	collab   Collaborator
	snapshot Snapshot
	machine  *syncstate.Machine
	pub      Publisher
	recorder Recorder
	logger   *log.Logger
	now      func() time.Time

	interval    time.Duration
	passTimeout time.Duration

	trigger chan struct{}

	// forgotten holds ids deleted through the collaborator since the last
	// pass. They are dropped from the snapshot instead of being pushed back
	// as local-only tasks.
	forgotMu  sync.Mutex
	forgotten map[string]struct{}

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an engine. Without a Machine it tracks its own state and
// assumes it is online.
func NewEngine(c Collaborator, snap Snapshot, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.PassTimeout <= 0 {
		opts.PassTimeout = DefaultPassTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Machine == nil {
		opts.Machine = syncstate.New(true, opts.Now(), opts.Logger)
	}
	return &Engine{
		collab:      c,
		snapshot:    snap,
		machine:     opts.Machine,
		pub:         opts.Publisher,
		recorder:    opts.Recorder,
		logger:      opts.Logger,
		now:         opts.Now,
		interval:    opts.Interval,
		passTimeout: opts.PassTimeout,
		trigger:     make(chan struct{}, 1),
		forgotten:   make(map[string]struct{}),
	}
}

// Forget marks ids as deleted at the collaborator. The next successful pass
// removes them from the snapshot.
func (e *Engine) Forget(ids ...string) {
	e.forgotMu.Lock()
	defer e.forgotMu.Unlock()
	for _, id := range ids {
		e.forgotten[id] = struct{}{}
	}
}

// dropForgotten removes forgotten ids from local. It returns the ids it
// applied, to be cleared once the pass succeeds.
func (e *Engine) dropForgotten(local []models.Task) ([]models.Task, []string) {
	e.forgotMu.Lock()
	defer e.forgotMu.Unlock()
	if len(e.forgotten) == 0 {
		return local, nil
	}
	applied := make([]string, 0, len(e.forgotten))
	for id := range e.forgotten {
		applied = append(applied, id)
	}
	kept := make([]models.Task, 0, len(local))
	for _, t := range local {
		if _, ok := e.forgotten[t.ID]; !ok {
			kept = append(kept, t)
		}
	}
	return kept, applied
}

func (e *Engine) clearForgotten(ids []string) {
	e.forgotMu.Lock()
	defer e.forgotMu.Unlock()
	for _, id := range ids {
		delete(e.forgotten, id)
	}
}

// Machine returns the state machine the engine reports to.
func (e *Engine) Machine() *syncstate.Machine {
	return e.machine
}

// Start begins the interval loop. Calling Start on a running engine is a
// no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go e.loop(e.ctx)
	e.logger.Info("reconciler started", "interval", e.interval)
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	e.wg.Wait()
	e.logger.Info("reconciler stopped")
}

// Trigger requests an ad hoc pass. Requests made while one is pending
// coalesce.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.reachable() {
				continue
			}
			e.run(ctx)
		case <-e.trigger:
			e.run(ctx)
		}
	}
}

// reachable reports whether the interval timer should fire a pass.
func (e *Engine) reachable() bool {
	s := e.machine.State()
	if !s.IsOnline {
		return false
	}
	return s.ConnectionStatus == syncstate.StatusConnected || s.ConnectionStatus == syncstate.StatusError
}

func (e *Engine) run(ctx context.Context) {
	_, err := e.SyncNow(ctx)
	switch err {
	case nil, ErrOffline:
	case ErrSyncInFlight:
		e.logger.Debug("sync skipped, pass in flight")
	default:
		e.logger.Warn("sync pass failed", "err", err)
	}
}

// SyncNow runs one pass unless one is already in flight or the device is
// offline.
func (e *Engine) SyncNow(ctx context.Context) (Report, error) {
	if !e.machine.State().IsOnline {
		return Report{}, ErrOffline
	}
	if !e.machine.BeginSync() {
		return Report{}, ErrSyncInFlight
	}

	ok := false
	defer func() {
		e.machine.EndSync(ok, e.now())
	}()

	ctx, cancel := context.WithTimeout(ctx, e.passTimeout)
	defer cancel()

	rep, err := e.pass(ctx)
	if err != nil {
		e.machine.Failed()
		e.record("sync.pass", rep, "failure", err.Error())
		return rep, err
	}
	if e.machine.State().ConnectionStatus == syncstate.StatusError {
		e.machine.Connected()
	}

	ok = true
	e.record("sync.pass", rep, "success",
		fmt.Sprintf("merged %d tasks, pushed %d, %d push failures", rep.Merged, rep.Pushed, rep.PushFailed))
	e.logger.Debug("sync pass complete", "remote", rep.Remote, "local", rep.Local,
		"merged", rep.Merged, "pushed", rep.Pushed, "emitted", rep.Emitted)
	return rep, nil
}

func (e *Engine) pass(ctx context.Context) (Report, error) {
	var rep Report

	remote, err := e.collab.GetTasks(ctx)
	if err != nil {
		return rep, fmt.Errorf("fetch remote tasks: %w", err)
	}
	rep.Remote = len(remote)

	local, err := e.snapshot.Load(ctx)
	if err != nil {
		return rep, fmt.Errorf("load snapshot: %w", err)
	}
	rep.Local = len(local)
	stored := local
	local, forgotten := e.dropForgotten(local)

	res := Merge(local, remote)
	rep.Merged = len(res.Tasks)
	var accepted map[string]models.Task
	accepted, rep.PushFailed = e.push(ctx, res.Pushes)
	rep.Pushed = len(accepted)
	adopt(res.Tasks, accepted)

	if !res.Changed && SameTasks(res.Tasks, stored) {
		e.clearForgotten(forgotten)
		return rep, nil
	}

	if err := e.snapshot.Save(ctx, res.Tasks); err != nil {
		return rep, fmt.Errorf("save snapshot: %w", err)
	}
	e.clearForgotten(forgotten)
	if e.pub != nil {
		e.pub.Publish(events.TasksSynced, events.SyncedPayload{Tasks: res.Tasks})
	}
	rep.Emitted = true
	return rep, nil
}

// push sends local winners back to the collaborator and returns the stored
// copies it accepted, by id. A failed item is logged and skipped.
func (e *Engine) push(ctx context.Context, pushes []Push) (map[string]models.Task, int) {
	accepted := make(map[string]models.Task, len(pushes))
	failed := 0
	for _, p := range pushes {
		var (
			stored models.Task
			err    error
		)
		switch p.Kind {
		case PushCreate:
			stored, err = e.collab.CreateTask(ctx, p.Task)
		default:
			stored, err = e.collab.UpdateTask(ctx, p.Task)
		}
		if err != nil {
			failed++
			e.logger.Error("push task failed", "task", p.Task.ID, "kind", p.Kind, "err", err)
			continue
		}
		if stored.ID != p.Task.ID {
			// The collaborator assigned its own id; keep the local copy.
			stored = p.Task
		}
		accepted[p.Task.ID] = stored
	}
	return accepted, failed
}

// adopt replaces pushed tasks with the copies the collaborator stored, so
// the next pass compares like with like.
func adopt(tasks []models.Task, accepted map[string]models.Task) {
	if len(accepted) == 0 {
		return
	}
	for i, t := range tasks {
		if stored, ok := accepted[t.ID]; ok {
			tasks[i] = stored.Clone()
		}
	}
}

func (e *Engine) record(action string, inputs any, outcome, details string) {
	if e.recorder == nil {
		return
	}
	if _, err := e.recorder.Record(action, inputs, outcome, "", details); err != nil {
		e.logger.Warn("audit record failed", "action", action, "err", err)
	}
}
