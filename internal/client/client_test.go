package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fentz26/familydash/internal/audit"
	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/controlplane"
	"github.com/fentz26/familydash/internal/events"
	"github.com/fentz26/familydash/internal/models"
	"github.com/fentz26/familydash/internal/reconcile"
	"github.com/fentz26/familydash/internal/recurrence"
	"github.com/fentz26/familydash/internal/snapshot"
	"github.com/fentz26/familydash/internal/store"
	"github.com/google/go-cmp/cmp"
)

func newTestDaemon(t *testing.T) *Client {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := log.New(io.Discard)
	bus := events.NewBus(events.Options{Source: "daemon", Logger: logger})
	service := controlplane.NewService(st, audit.NewRecorder(st), bus, recurrence.New(recurrence.Options{}), logger)
	srv := httptest.NewServer(controlplane.NewServer(service, nil, "", logger).Handler())
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func TestClient_TaskRoundTrip(t *testing.T) {
	c := newTestDaemon(t)
	ctx := context.Background()

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	due := calendar.MustParse("2024-03-05")
	created, err := c.CreateTask(ctx, models.Task{
		Title:   "Dentist",
		Type:    models.TaskTypeOneOff,
		DueDate: &due,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("created task missing id or timestamp: %+v", created)
	}

	created.Title = "Dentist at 3pm"
	updated, err := c.UpdateTask(ctx, created)
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if updated.Title != "Dentist at 3pm" {
		t.Errorf("title = %q", updated.Title)
	}

	tasks, err := c.GetTasks(ctx)
	if err != nil {
		t.Fatalf("GetTasks: %v", err)
	}
	if len(tasks) != 1 || !tasks[0].Equal(updated) {
		t.Errorf("GetTasks = %+v, want [%+v]", tasks, updated)
	}

	if err := c.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := c.GetTask(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask after delete err = %v, want ErrNotFound", err)
	}
}

func TestClient_ValidationError(t *testing.T) {
	c := newTestDaemon(t)

	_, err := c.CreateTask(context.Background(), models.Task{Type: models.TaskTypeOneOff})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", apiErr.Status)
	}
}

func TestClient_WeekAndCompletions(t *testing.T) {
	c := newTestDaemon(t)
	ctx := context.Background()

	task, err := c.CreateTask(ctx, models.Task{
		Title:      "Bins",
		Type:       models.TaskTypeRecurring,
		Recurrence: &models.Recurrence{Days: []int{1}},
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	monday := calendar.MustParse("2024-03-04")
	if _, err := c.AddCompletion(ctx, task.ID, &monday); err != nil {
		t.Fatalf("AddCompletion: %v", err)
	}

	view, err := c.Week(ctx, monday)
	if err != nil {
		t.Fatalf("Week: %v", err)
	}
	if len(view.Days) != 7 {
		t.Fatalf("days = %d, want 7", len(view.Days))
	}
	items := view.Days[0].Items
	if len(items) != 1 || items[0].Task.ID != task.ID || !items[0].Completed {
		t.Errorf("monday items = %+v, want one completed %s", items, task.ID)
	}
	if n := len(view.Days[1].Items); n != 0 {
		t.Errorf("tuesday items = %d, want 0", n)
	}

	removed, err := c.RemoveCompletions(ctx, task.ID, &monday)
	if err != nil {
		t.Fatalf("RemoveCompletions: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

func TestClient_SyncUnavailable(t *testing.T) {
	c := newTestDaemon(t)

	_, err := c.ForceSync(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Errorf("ForceSync err = %v, want 503", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Ping(ctx); err == nil {
		t.Error("Ping to a closed server should fail")
	}
}

// A device with tasks the daemon has never seen pushes them on its first
// pass, and the daemon ends up with the merged set.
func TestClient_ReconcileAgainstDaemon(t *testing.T) {
	c := newTestDaemon(t)
	ctx := context.Background()

	shared, err := c.CreateTask(ctx, models.Task{Title: "Laundry", Type: models.TaskTypeRecurring,
		Recurrence: &models.Recurrence{Days: []int{6}}})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	localOnly := models.Task{
		ID:        "task_offline",
		Title:     "Written offline",
		Type:      models.TaskTypeOneOff,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	snap := snapshot.NewFile(filepath.Join(t.TempDir(), "tasks.json"))
	if err := snap.Save(ctx, []models.Task{localOnly}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	engine := reconcile.NewEngine(c, snap, reconcile.Options{Logger: log.New(io.Discard)})
	rep, err := engine.SyncNow(ctx)
	if err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if rep.Pushed != 1 || rep.PushFailed != 0 {
		t.Errorf("report = %+v, want one push", rep)
	}

	remote, err := c.GetTasks(ctx)
	if err != nil {
		t.Fatalf("GetTasks: %v", err)
	}
	got := map[string]bool{}
	for _, task := range remote {
		got[task.ID] = true
	}
	want := map[string]bool{shared.ID: true, localOnly.ID: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("daemon tasks mismatch (-want +got):\n%s", diff)
	}

	saved, err := snap.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(saved) != 2 {
		t.Errorf("snapshot has %d tasks, want 2", len(saved))
	}
}
