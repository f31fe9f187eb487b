package realtime_test

import (
	"context"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fentz26/familydash/internal/audit"
	"github.com/fentz26/familydash/internal/controlplane"
	"github.com/fentz26/familydash/internal/events"
	"github.com/fentz26/familydash/internal/models"
	"github.com/fentz26/familydash/internal/realtime"
	"github.com/fentz26/familydash/internal/recurrence"
	"github.com/fentz26/familydash/internal/snapshot"
	"github.com/fentz26/familydash/internal/store"
)

// A daemon reconciles against its own store. A local winner pushed back
// through the service must settle after one update.
func TestCoordinator_LocalStoreSettlesAfterPush(t *testing.T) {
	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := log.New(io.Discard)
	bus := events.NewBus(events.Options{Source: "daemon", Channel: st, Logger: logger})
	t.Cleanup(func() { bus.Close() })
	resolver := recurrence.New(recurrence.Options{})
	service := controlplane.NewService(st, audit.NewRecorder(st), bus, resolver, logger)

	created := time.Date(2025, 8, 18, 9, 0, 0, 0, time.UTC)
	stored, err := service.CreateTask(models.Task{ID: "x", Title: "remote", Type: models.TaskTypeOneOff, CreatedAt: created})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	snap := snapshot.NewFile(filepath.Join(dir, "snapshot.json"))
	local := stored.Clone()
	local.Title = "local"
	local.CreatedAt = created.Add(time.Hour)
	if err := snap.Save(context.Background(), []models.Task{local}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	var updates, synced atomic.Int32
	bus.On(events.TaskUpdated, func(events.Event) { updates.Add(1) })
	bus.On(events.TasksSynced, func(events.Event) { synced.Add(1) })

	c := realtime.New(service.Collaborator(), snap, realtime.Options{
		Bus:          bus,
		Resolver:     resolver,
		Channel:      st,
		PollInterval: 10 * time.Millisecond,
		SyncInterval: time.Hour,
		Logger:       logger,
	})
	c.Start(context.Background())
	t.Cleanup(c.Stop)

	deadline := time.Now().Add(2 * time.Second)
	for synced.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if synced.Load() == 0 {
		t.Fatal("first pass never completed")
	}
	time.Sleep(200 * time.Millisecond)

	if n := updates.Load(); n != 1 {
		t.Errorf("task_updated events = %d, want 1", n)
	}
	got, err := service.GetTask("x")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "local" {
		t.Errorf("title = %q, want the local winner", got.Title)
	}

	rep, err := c.ForceSync(context.Background())
	if err != nil {
		t.Fatalf("ForceSync: %v", err)
	}
	if rep.Pushed != 0 || rep.Emitted {
		t.Errorf("settled pass pushed=%d emitted=%v", rep.Pushed, rep.Emitted)
	}
}
