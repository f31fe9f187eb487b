// Package realtime wires the event bus, sync state, resolver cache and
// reconciliation engine into one coordinator.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fentz26/familydash/internal/broadcast"
	"github.com/fentz26/familydash/internal/events"
	"github.com/fentz26/familydash/internal/reconcile"
	"github.com/fentz26/familydash/internal/recurrence"
	"github.com/fentz26/familydash/internal/syncstate"
)

// DefaultProbeTimeout bounds the connectivity probe.
const DefaultProbeTimeout = 5 * time.Second

// Collaborator is the CRUD contract plus a connectivity probe.
type Collaborator interface {
	reconcile.Collaborator
	Ping(ctx context.Context) error
}

// Options configures a Coordinator. Zero values get defaults.
type Options struct {
	Bus      *events.Bus
	Machine  *syncstate.Machine
	Resolver *recurrence.Resolver
	// Channel, when set, is watched for events from other processes.
	Channel      broadcast.Channel
	PollInterval time.Duration

	SyncInterval time.Duration
	PassTimeout  time.Duration
	ProbeTimeout time.Duration
	Recorder     reconcile.Recorder

	Logger *log.Logger
	Now    func() time.Time
}

// Coordinator is the pub/sub and sync surface handed to presentation code.
type Coordinator struct {
	collab   Collaborator
	bus      *events.Bus
	machine  *syncstate.Machine
	resolver *recurrence.Resolver
	engine   *reconcile.Engine
	watcher  *broadcast.Watcher
	logger   *log.Logger
	probe    time.Duration

	mu      sync.Mutex
	unsubs  []events.Unsubscribe
	started bool
}

// New creates a coordinator over collab and snap.
func New(collab Collaborator, snap reconcile.Snapshot, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus(events.Options{Channel: opts.Channel, Logger: opts.Logger, Now: opts.Now})
	}
	if opts.Machine == nil {
		opts.Machine = syncstate.New(false, opts.Now(), opts.Logger)
	}
	if opts.Resolver == nil {
		opts.Resolver = recurrence.New(recurrence.Options{})
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}

	c := &Coordinator{
		collab:   collab,
		bus:      opts.Bus,
		machine:  opts.Machine,
		resolver: opts.Resolver,
		logger:   opts.Logger,
		probe:    opts.ProbeTimeout,
	}
	c.engine = reconcile.NewEngine(collab, snap, reconcile.Options{
		Interval:    opts.SyncInterval,
		PassTimeout: opts.PassTimeout,
		Machine:     opts.Machine,
		Publisher:   opts.Bus,
		Recorder:    opts.Recorder,
		Logger:      opts.Logger,
		Now:         opts.Now,
	})
	if opts.Channel != nil {
		c.watcher = broadcast.NewWatcher(opts.Channel, opts.Bus.Source(), opts.PollInterval, c.onForeignSlot, opts.Logger)
	}
	return c
}

// Start subscribes to task mutations, starts the reconciliation loop and
// the broadcast watcher, then goes online.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.unsubs = append(c.unsubs,
		c.bus.On(events.TaskCreated, c.onTaskEvent),
		c.bus.On(events.TaskUpdated, c.onTaskEvent),
		c.bus.On(events.TaskDeleted, c.onTaskEvent),
		c.bus.On(events.TasksSynced, c.onTaskEvent),
	)
	c.mu.Unlock()

	c.engine.Start(ctx)
	if c.watcher != nil {
		c.watcher.Start()
	}
	c.SetOnline(ctx, true)
}

// Stop halts background work and drops the coordinator's subscriptions.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	if c.watcher != nil {
		c.watcher.Stop()
	}
	c.engine.Stop()
	for _, u := range unsubs {
		u()
	}
}

// On registers a listener for one event type.
func (c *Coordinator) On(t events.Type, fn events.Listener) events.Unsubscribe {
	return c.bus.On(t, fn)
}

// Emit publishes an event.
func (c *Coordinator) Emit(t events.Type, ev events.Event) {
	c.bus.Emit(t, ev)
}

// SyncState returns the current sync state.
func (c *Coordinator) SyncState() syncstate.State {
	return c.machine.State()
}

// OnSyncStateChange registers an observer of sync state changes.
func (c *Coordinator) OnSyncStateChange(fn syncstate.Observer) syncstate.Unsubscribe {
	return c.machine.Subscribe(fn)
}

// ForceSync runs a reconciliation pass now.
func (c *Coordinator) ForceSync(ctx context.Context) (reconcile.Report, error) {
	return c.engine.SyncNow(ctx)
}

// Resolver returns the shared instance resolver.
func (c *Coordinator) Resolver() *recurrence.Resolver {
	return c.resolver
}

// Bus returns the event bus.
func (c *Coordinator) Bus() *events.Bus {
	return c.bus
}

// SetOnline applies a network signal. Going online probes the collaborator
// and, on success, connects and requests a pass.
func (c *Coordinator) SetOnline(ctx context.Context, online bool) {
	if !online {
		c.machine.GoOffline()
		c.logger.Info("offline, sync suspended")
		return
	}

	c.machine.GoOnline()
	if !c.machine.Connecting() {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.probe)
	defer cancel()
	if err := c.collab.Ping(probeCtx); err != nil {
		c.logger.Warn("collaborator unreachable", "err", err)
		c.machine.Failed()
		return
	}
	if c.machine.Connected() {
		c.logger.Info("connected")
		c.engine.Trigger()
	}
}

func (c *Coordinator) onTaskEvent(ev events.Event) {
	switch ev.Type {
	case events.TaskCreated, events.TasksSynced:
		c.resolver.ClearCache()
	default:
		c.resolver.InvalidateCache(ev.TaskIDs()...)
	}

	if ev.Type.IsTaskMutation() && ev.Source == c.bus.Source() && !ev.FromSync() {
		if ev.Type == events.TaskDeleted {
			c.engine.Forget(ev.TaskIDs()...)
		}
		c.machine.AddPending(1)
		c.engine.Trigger()
	}
}

func (c *Coordinator) onForeignSlot(s broadcast.Slot) {
	t := events.Type(s.Type)
	if t.IsTaskMutation() || t == events.TasksSynced {
		c.resolver.ClearCache()
	}
	if t == events.TaskDeleted {
		if id := deletedID(s.Payload); id != "" {
			c.engine.Forget(id)
		}
	}
	c.logger.Debug("foreign event", "type", s.Type, "source", s.Source)
	c.engine.Trigger()
}

// deletedID reads the task id from a mirrored task_deleted event.
func deletedID(payload []byte) string {
	var ev struct {
		Data events.TaskRef `json:"data"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ""
	}
	return ev.Data.ID
}
