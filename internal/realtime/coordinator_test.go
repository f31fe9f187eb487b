package realtime

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fentz26/familydash/internal/broadcast"
	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/events"
	"github.com/fentz26/familydash/internal/models"
	"github.com/fentz26/familydash/internal/reconcile"
	"github.com/fentz26/familydash/internal/syncstate"
	"github.com/google/go-cmp/cmp"
)

type fakeCollab struct {
	mu       sync.Mutex
	tasks    []models.Task
	pingErr  error
	getCalls int
	created  []string
}

func (f *fakeCollab) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeCollab) GetTasks(context.Context) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	return append([]models.Task(nil), f.tasks...), nil
}

func (f *fakeCollab) CreateTask(_ context.Context, t models.Task) (models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, t.ID)
	f.tasks = append(f.tasks, t)
	return t, nil
}

func (f *fakeCollab) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.tasks[:0]
	for _, t := range f.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	f.tasks = kept
}

func (f *fakeCollab) UpdateTask(_ context.Context, t models.Task) (models.Task, error) {
	return t, nil
}

func (f *fakeCollab) DeleteTask(context.Context, string) error { return nil }

func (f *fakeCollab) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

type memSnapshot struct {
	mu    sync.Mutex
	tasks []models.Task
}

func (m *memSnapshot) Load(context.Context) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Task{}, m.tasks...), nil
}

func (m *memSnapshot) Save(_ context.Context, tasks []models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append([]models.Task(nil), tasks...)
	return nil
}

func (m *memSnapshot) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.tasks))
	for i, t := range m.tasks {
		out[i] = t.ID
	}
	return out
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestCoordinator(t *testing.T, collab *fakeCollab, ch broadcast.Channel) *Coordinator {
	t.Helper()
	c := New(collab, &memSnapshot{}, Options{
		Channel:      ch,
		PollInterval: 10 * time.Millisecond,
		SyncInterval: time.Hour,
		Logger:       quietLogger(),
	})
	t.Cleanup(func() {
		c.Stop()
		c.Bus().Close()
	})
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func weekly(id string) models.Task {
	return models.Task{
		ID:         id,
		Title:      "Bins",
		Type:       models.TaskTypeRecurring,
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Recurrence: &models.Recurrence{Days: []int{1, 3}},
	}
}

func TestCoordinator_StartConnectsAndSyncs(t *testing.T) {
	collab := &fakeCollab{tasks: []models.Task{weekly("task_1")}}
	c := newTestCoordinator(t, collab, nil)

	var synced sync.WaitGroup
	synced.Add(1)
	var once sync.Once
	c.On(events.TasksSynced, func(events.Event) { once.Do(synced.Done) })

	c.Start(context.Background())
	synced.Wait()

	waitFor(t, "pass to finish", func() bool {
		s := c.SyncState()
		return !s.IsSyncing && !s.LastSyncTime.IsZero()
	})
	s := c.SyncState()
	if !s.IsOnline || s.ConnectionStatus != syncstate.StatusConnected {
		t.Errorf("state = %+v, want online and connected", s)
	}
}

func TestCoordinator_ProbeFailure(t *testing.T) {
	collab := &fakeCollab{pingErr: errors.New("connection refused")}
	c := newTestCoordinator(t, collab, nil)

	c.Start(context.Background())

	s := c.SyncState()
	if !s.IsOnline {
		t.Error("expected online after start")
	}
	if s.ConnectionStatus != syncstate.StatusError {
		t.Errorf("status = %s, want error", s.ConnectionStatus)
	}

	collab.mu.Lock()
	collab.pingErr = nil
	collab.mu.Unlock()
	c.SetOnline(context.Background(), true)
	if got := c.SyncState().ConnectionStatus; got != syncstate.StatusConnected {
		t.Errorf("status after recovery = %s, want connected", got)
	}
}

func TestCoordinator_Offline(t *testing.T) {
	c := newTestCoordinator(t, &fakeCollab{}, nil)
	c.Start(context.Background())

	var seen []syncstate.State
	var mu sync.Mutex
	unsub := c.OnSyncStateChange(func(s syncstate.State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	defer unsub()

	c.SetOnline(context.Background(), false)

	s := c.SyncState()
	if s.IsOnline || s.ConnectionStatus != syncstate.StatusDisconnected {
		t.Errorf("state = %+v, want offline and disconnected", s)
	}
	if _, err := c.ForceSync(context.Background()); !errors.Is(err, reconcile.ErrOffline) {
		t.Errorf("ForceSync offline err = %v, want ErrOffline", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 || seen[len(seen)-1].IsOnline {
		t.Errorf("observer did not see the offline transition: %+v", seen)
	}
}

func TestCoordinator_TaskEventsInvalidateCache(t *testing.T) {
	c := newTestCoordinator(t, &fakeCollab{}, nil)
	c.Start(context.Background())

	week := calendar.MustParse("2024-03-04")
	tasks := []models.Task{weekly("task_a")}
	other := []models.Task{weekly("task_b")}
	c.Resolver().InstancesForWeek(tasks, week)
	c.Resolver().InstancesForWeek(other, week)
	if got := c.Resolver().Stats().Entries; got != 2 {
		t.Fatalf("entries = %d, want 2", got)
	}

	c.Emit(events.TaskUpdated, events.Event{Data: events.TaskRef{ID: "task_a"}})
	if got := c.Resolver().Stats().Entries; got != 1 {
		t.Errorf("entries after update = %d, want 1", got)
	}

	c.Emit(events.TaskCreated, events.Event{Data: weekly("task_c")})
	if got := c.Resolver().Stats().Entries; got != 0 {
		t.Errorf("entries after create = %d, want 0", got)
	}
}

func TestCoordinator_LocalMutationRaisesPending(t *testing.T) {
	collab := &fakeCollab{}
	c := newTestCoordinator(t, collab, nil)
	c.Start(context.Background())
	waitFor(t, "initial pass", func() bool { return collab.calls() >= 1 })

	var mu sync.Mutex
	maxPending := 0
	unsub := c.OnSyncStateChange(func(s syncstate.State) {
		mu.Lock()
		if s.PendingChanges > maxPending {
			maxPending = s.PendingChanges
		}
		mu.Unlock()
	})
	defer unsub()

	before := collab.calls()
	c.Emit(events.TaskDeleted, events.Event{Data: events.TaskRef{ID: "task_x"}})

	waitFor(t, "triggered pass", func() bool { return collab.calls() > before })
	mu.Lock()
	defer mu.Unlock()
	if maxPending < 1 {
		t.Error("local mutation did not raise pending changes")
	}
}

func TestCoordinator_LocalDeleteIsNotPushedBack(t *testing.T) {
	collab := &fakeCollab{tasks: []models.Task{weekly("task_keep"), weekly("task_gone")}}
	snap := &memSnapshot{}
	c := New(collab, snap, Options{SyncInterval: time.Hour, Logger: quietLogger()})
	t.Cleanup(func() {
		c.Stop()
		c.Bus().Close()
	})
	c.Start(context.Background())
	waitFor(t, "initial pass", func() bool { return len(snap.ids()) == 2 })
	waitFor(t, "initial pass to end", func() bool { return !c.SyncState().IsSyncing })

	collab.remove("task_gone")
	c.Emit(events.TaskDeleted, events.Event{Data: events.TaskRef{ID: "task_gone"}})

	waitFor(t, "snapshot to drop the task", func() bool { return len(snap.ids()) == 1 })
	if diff := cmp.Diff([]string{"task_keep"}, snap.ids()); diff != "" {
		t.Errorf("snapshot (-want +got):\n%s", diff)
	}
	collab.mu.Lock()
	defer collab.mu.Unlock()
	if len(collab.created) != 0 {
		t.Errorf("deleted task pushed back: %v", collab.created)
	}
}

func TestCoordinator_ForeignEventsAreIgnoredForPending(t *testing.T) {
	c := newTestCoordinator(t, &fakeCollab{}, nil)
	c.Start(context.Background())

	var mu sync.Mutex
	raised := false
	unsub := c.OnSyncStateChange(func(s syncstate.State) {
		mu.Lock()
		if s.PendingChanges > 0 {
			raised = true
		}
		mu.Unlock()
	})
	defer unsub()

	c.Emit(events.TaskUpdated, events.Event{Source: "device_other", Data: events.TaskRef{ID: "task_x"}})

	mu.Lock()
	if raised {
		t.Error("foreign mutation should not count as a pending local change")
	}
	mu.Unlock()

	c.Emit(events.TaskUpdated, events.Event{Origin: events.OriginSync, Data: events.TaskRef{ID: "task_x"}})

	mu.Lock()
	defer mu.Unlock()
	if raised {
		t.Error("a pushed task should not count as a pending local change")
	}
}

func TestCoordinator_ForeignSlotTriggersSync(t *testing.T) {
	ch := broadcast.NewMemory()
	collab := &fakeCollab{}
	c := newTestCoordinator(t, collab, ch)
	c.Start(context.Background())
	waitFor(t, "initial pass", func() bool { return collab.calls() >= 1 })
	waitFor(t, "initial pass to end", func() bool { return !c.SyncState().IsSyncing })

	c.Resolver().InstancesForWeek([]models.Task{weekly("task_a")}, calendar.MustParse("2024-03-04"))
	before := collab.calls()

	now := time.Now().Add(time.Millisecond)
	err := ch.Put(context.Background(), broadcast.Slot{
		Key:       broadcast.SlotKey(string(events.TaskUpdated), now),
		Type:      string(events.TaskUpdated),
		Source:    "device_other",
		Payload:   []byte(`{"type":"task_updated","data":{"id":"task_a"}}`),
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	waitFor(t, "foreign slot pass", func() bool { return collab.calls() > before })
	if got := c.Resolver().Stats().Entries; got != 0 {
		t.Errorf("entries after foreign task event = %d, want 0", got)
	}
}

func TestCoordinator_StopIsIdempotent(t *testing.T) {
	c := newTestCoordinator(t, &fakeCollab{}, nil)
	c.Start(context.Background())
	c.Stop()
	c.Stop()

	if n := c.Bus().ListenerCount(events.TaskUpdated); n != 0 {
		t.Errorf("listeners after stop = %d, want 0", n)
	}
}

func TestLoadDeviceID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "device_id")

	first, err := LoadDeviceID(path)
	if err != nil {
		t.Fatalf("LoadDeviceID: %v", err)
	}
	if first == "" {
		t.Fatal("empty device id")
	}
	second, err := LoadDeviceID(path)
	if err != nil {
		t.Fatalf("LoadDeviceID again: %v", err)
	}
	if first != second {
		t.Errorf("device id changed: %q then %q", first, second)
	}
}
