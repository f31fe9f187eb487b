package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fentz26/familydash/internal/broadcast"
	"github.com/google/uuid"
)

// DefaultSlotTTL is how long a mirrored broadcast slot lives.
const DefaultSlotTTL = time.Second

// Listener receives events of one type.
type Listener func(Event)

// Unsubscribe deregisters a listener. Calling it more than once is harmless.
type Unsubscribe func()

// Options configures a Bus.
type Options struct {
	// Source stamps events emitted without one. Defaults to a fresh id.
	Source string
	// Channel, when set, receives a short-lived mirror of every event.
	Channel broadcast.Channel
	SlotTTL time.Duration
	Logger  *log.Logger
	Now     func() time.Time
}

type subscriber struct {
	id uint64
	fn Listener
}

// Bus delivers events to listeners in emission order. Emits made while the
// queue is draining, including from inside a listener, are queued behind the
// current event rather than delivered inline.
type Bus struct {
	source  string
	channel broadcast.Channel
	slotTTL time.Duration
	logger  *log.Logger
	now     func() time.Time

	mu        sync.Mutex
	listeners map[Type][]subscriber
	nextID    uint64
	queue     []Event
	draining  bool
	expiries  map[string]*time.Timer
	closed    bool
}

// NewSourceID returns a new execution-context identifier.
func NewSourceID() string {
	return "device_" + uuid.New().String()
}

// NewBus creates a bus.
func NewBus(opts Options) *Bus {
	if opts.Source == "" {
		opts.Source = NewSourceID()
	}
	if opts.SlotTTL <= 0 {
		opts.SlotTTL = DefaultSlotTTL
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bus{
		source:    opts.Source,
		channel:   opts.Channel,
		slotTTL:   opts.SlotTTL,
		logger:    opts.Logger,
		now:       opts.Now,
		listeners: make(map[Type][]subscriber),
		expiries:  make(map[string]*time.Timer),
	}
}

// Source returns the identifier stamped on locally emitted events.
func (b *Bus) Source() string {
	return b.source
}

// On registers fn for events of type t.
func (b *Bus) On(t Type, fn Listener) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners[t] = append(b.listeners[t], subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(t, id) })
	}
}

func (b *Bus) remove(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.listeners[t]
	for i, s := range subs {
		if s.id == id {
			// Copy so a drain holding the old slice is unaffected.
			next := make([]subscriber, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			subs = next
			break
		}
	}
	if len(subs) == 0 {
		delete(b.listeners, t)
		return
	}
	b.listeners[t] = subs
}

// ListenerCount returns the number of listeners registered for t.
func (b *Bus) ListenerCount(t Type) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[t])
}

// Emit queues ev under type t and drains the queue unless a drain is
// already running.
func (b *Bus) Emit(t Type, ev Event) {
	ev.Type = t
	if ev.Source == "" {
		ev.Source = b.source
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}

	b.mu.Lock()
	b.queue = append(b.queue, ev)
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true
	b.mu.Unlock()

	b.drain()
}

// Publish emits an event of type t carrying data.
func (b *Bus) Publish(t Type, data any) {
	b.Emit(t, Event{Data: data})
}

func (b *Bus) drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			b.mu.Unlock()
			return
		}
		ev := b.queue[0]
		b.queue[0] = Event{}
		b.queue = b.queue[1:]
		subs := b.listeners[ev.Type]
		b.mu.Unlock()

		for _, s := range subs {
			b.deliver(s, ev)
		}
		b.mirror(ev)
	}
}

func (b *Bus) deliver(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener failed", "type", ev.Type, "listener", s.id, "panic", r)
		}
	}()
	s.fn(ev)
}

// mirror writes ev to the broadcast channel and schedules the slot's removal.
// A closed bus delivers locally but no longer writes slots.
func (b *Bus) mirror(ev Event) {
	if b.channel == nil {
		return
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("broadcast encode failed", "type", ev.Type, "err", err)
		return
	}

	written := b.now()
	slot := broadcast.Slot{
		Key:       broadcast.SlotKey(string(ev.Type), written),
		Type:      string(ev.Type),
		Source:    ev.Source,
		Payload:   payload,
		CreatedAt: written,
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.slotTTL)
	defer cancel()
	if err := b.channel.Put(ctx, slot); err != nil {
		b.logger.Warn("broadcast write failed", "key", slot.Key, "err", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		// Closed while writing; nothing will expire the slot.
		go b.expire(slot.Key)
		return
	}
	if old, ok := b.expiries[slot.Key]; ok {
		old.Stop()
	}
	b.expiries[slot.Key] = time.AfterFunc(b.slotTTL, func() { b.expire(slot.Key) })
}

func (b *Bus) expire(key string) {
	b.mu.Lock()
	delete(b.expiries, key)
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), b.slotTTL)
	defer cancel()
	if err := b.channel.Delete(ctx, key); err != nil {
		b.logger.Warn("broadcast cleanup failed", "key", key, "err", err)
	}
}

// Close stops pending slot expiries and removes their slots immediately.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	pending := b.expiries
	b.expiries = make(map[string]*time.Timer)
	b.mu.Unlock()

	var firstErr error
	for key, timer := range pending {
		if !timer.Stop() {
			continue
		}
		if err := b.channel.Delete(context.Background(), key); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("delete slot %s: %w", key, err)
		}
	}
	return firstErr
}
