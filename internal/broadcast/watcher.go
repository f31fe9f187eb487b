package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Handler receives slots written by other sources.
type Handler func(Slot)

// Watcher polls a Channel and hands foreign slots to a Handler.
type Watcher struct {
	channel  Channel
	source   string
	interval time.Duration
	handler  Handler
	logger   *log.Logger

	mu      sync.Mutex
	started time.Time
	cursor  time.Time
	// seen maps slot keys in the re-read window to their write time.
	seen map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher that ignores slots from source.
func NewWatcher(ch Channel, source string, interval time.Duration, handler Handler, logger *log.Logger) *Watcher {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = log.Default()
	}
	now := time.Now()
	return &Watcher{
		channel:  ch,
		source:   source,
		interval: interval,
		handler:  handler,
		logger:   logger,
		started:  now,
		cursor:   now,
		seen:     make(map[string]time.Time),
	}
}

// Start begins polling.
func (w *Watcher) Start() {
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.wg.Add(1)
	go w.loop()
}

// Stop halts polling and waits for the loop to exit.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.Poll(w.ctx)
		}
	}
}

// Poll reads new slots once and dispatches the foreign ones.
func (w *Watcher) Poll(ctx context.Context) {
	w.mu.Lock()
	cursor := w.cursor
	w.mu.Unlock()

	// Slots written in the same instant as the cursor may land late, so
	// re-read one interval back and de-duplicate by key.
	slots, err := w.channel.Since(ctx, cursor.Add(-w.interval))
	if err != nil {
		w.logger.Warn("broadcast poll failed", "err", err)
		return
	}

	w.mu.Lock()
	var fresh []Slot
	for _, s := range slots {
		if _, ok := w.seen[s.Key]; ok {
			continue
		}
		w.seen[s.Key] = s.CreatedAt
		if s.CreatedAt.After(w.cursor) {
			w.cursor = s.CreatedAt
		}
		if s.Source != w.source && s.CreatedAt.After(w.started) {
			fresh = append(fresh, s)
		}
	}
	w.pruneSeen()
	w.mu.Unlock()

	for _, s := range fresh {
		w.dispatch(s)
	}
}

// pruneSeen forgets keys older than the re-read window. The cursor never
// moves back, so no later poll can return them.
func (w *Watcher) pruneSeen() {
	floor := w.cursor.Add(-w.interval)
	for key, at := range w.seen {
		if at.Before(floor) {
			delete(w.seen, key)
		}
	}
}

func (w *Watcher) dispatch(s Slot) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("broadcast handler panicked", "key", s.Key, "panic", r)
		}
	}()
	w.handler(s)
}
