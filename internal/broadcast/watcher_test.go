package broadcast

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestWatcherDispatchesForeignSlotsOnce(t *testing.T) {
	ch := NewMemory()
	var got []string
	w := NewWatcher(ch, "me", 100*time.Millisecond, func(s Slot) { got = append(got, s.Key) }, log.New(io.Discard))

	now := time.Now()
	ctx := context.Background()
	_ = ch.Put(ctx, Slot{Key: SlotKey("task_created", now.Add(time.Millisecond)), Type: "task_created", Source: "other", CreatedAt: now.Add(time.Millisecond)})
	_ = ch.Put(ctx, Slot{Key: SlotKey("note_saved", now.Add(2*time.Millisecond)), Type: "note_saved", Source: "me", CreatedAt: now.Add(2 * time.Millisecond)})

	w.Poll(ctx)
	w.Poll(ctx)

	if len(got) != 1 {
		t.Fatalf("expected one foreign slot, got %v", got)
	}
}

func TestWatcherLargeBatchInWindowDispatchedOnce(t *testing.T) {
	ch := NewMemory()
	count := 0
	w := NewWatcher(ch, "me", 100*time.Millisecond, func(Slot) { count++ }, log.New(io.Discard))

	ctx := context.Background()
	now := time.Now()
	const n = 5000
	for i := 1; i <= n; i++ {
		at := now.Add(time.Duration(i) * time.Microsecond)
		_ = ch.Put(ctx, Slot{Key: SlotKey("task_updated", at), Source: "other", CreatedAt: at})
	}

	w.Poll(ctx)
	w.Poll(ctx)
	if count != n {
		t.Fatalf("dispatched %d slots, want %d", count, n)
	}

	// Once the cursor moves a full interval on, the batch leaves the window.
	later := now.Add(time.Second)
	_ = ch.Put(ctx, Slot{Key: SlotKey("task_updated", later), Source: "other", CreatedAt: later})
	w.Poll(ctx)
	if count != n+1 {
		t.Errorf("dispatched %d slots, want %d", count, n+1)
	}
	w.mu.Lock()
	seen := len(w.seen)
	w.mu.Unlock()
	if seen != 1 {
		t.Errorf("seen holds %d keys after the window moved, want 1", seen)
	}
}

func TestWatcherIgnoresSlotsBeforeStart(t *testing.T) {
	ch := NewMemory()
	old := time.Now().Add(-time.Hour)
	_ = ch.Put(context.Background(), Slot{Key: "old", Source: "other", CreatedAt: old})

	called := false
	w := NewWatcher(ch, "me", 100*time.Millisecond, func(Slot) { called = true }, log.New(io.Discard))
	w.Poll(context.Background())

	if called {
		t.Error("slot written before the watcher started was dispatched")
	}
}

func TestWatcherHandlerPanicIsContained(t *testing.T) {
	ch := NewMemory()
	w := NewWatcher(ch, "me", 100*time.Millisecond, func(Slot) { panic("boom") }, log.New(io.Discard))

	at := time.Now().Add(time.Millisecond)
	_ = ch.Put(context.Background(), Slot{Key: "k", Source: "other", CreatedAt: at})

	w.Poll(context.Background())
}

func TestWatcherStartStop(t *testing.T) {
	ch := NewMemory()
	hits := make(chan Slot, 1)
	w := NewWatcher(ch, "me", 10*time.Millisecond, func(s Slot) { hits <- s }, log.New(io.Discard))
	w.Start()
	defer w.Stop()

	at := time.Now().Add(time.Millisecond)
	_ = ch.Put(context.Background(), Slot{Key: "k", Source: "other", CreatedAt: at})

	select {
	case s := <-hits:
		if s.Key != "k" {
			t.Errorf("unexpected slot %q", s.Key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never dispatched")
	}
}

func TestSlotKeyIncludesType(t *testing.T) {
	k := SlotKey("tasks_synced", time.Date(2025, 8, 18, 9, 0, 0, 5, time.UTC))
	if k != "familydash:tasks_synced:20250818T090000.000000005" {
		t.Errorf("unexpected key %q", k)
	}
}
