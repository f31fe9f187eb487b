package reconcile

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fentz26/familydash/internal/events"
	"github.com/fentz26/familydash/internal/models"
	"github.com/fentz26/familydash/internal/syncstate"
	"github.com/google/go-cmp/cmp"
)

type fakeCollab struct {
	mu       sync.Mutex
	tasks    []models.Task
	getErr   error
	pushErr  map[string]error
	created  []string
	updated  []string
	block    chan struct{}
	getCalls int
	// keepCreated makes UpdateTask behave like the store: the stored
	// creation time never changes.
	keepCreated bool
}

func (f *fakeCollab) GetTasks(ctx context.Context) ([]models.Task, error) {
	f.mu.Lock()
	f.getCalls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return append([]models.Task(nil), f.tasks...), nil
}

func (f *fakeCollab) CreateTask(_ context.Context, t models.Task) (models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.pushErr[t.ID]; err != nil {
		return models.Task{}, err
	}
	f.created = append(f.created, t.ID)
	return t, nil
}

func (f *fakeCollab) UpdateTask(_ context.Context, t models.Task) (models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.pushErr[t.ID]; err != nil {
		return models.Task{}, err
	}
	f.updated = append(f.updated, t.ID)
	if f.keepCreated {
		for i, cur := range f.tasks {
			if cur.ID == t.ID {
				t.CreatedAt = cur.CreatedAt
				f.tasks[i] = t
			}
		}
	}
	return t, nil
}

func (f *fakeCollab) DeleteTask(context.Context, string) error { return nil }

type memSnapshot struct {
	mu      sync.Mutex
	tasks   []models.Task
	saves   int
	saveErr error
}

func (m *memSnapshot) Load(context.Context) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Task(nil), m.tasks...), nil
}

func (m *memSnapshot) Save(_ context.Context, tasks []models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.tasks = append([]models.Task(nil), tasks...)
	return nil
}

type capture struct {
	mu     sync.Mutex
	events []events.SyncedPayload
}

func (c *capture) Publish(t events.Type, data any) {
	if t != events.TasksSynced {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, data.(events.SyncedPayload))
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type recorded struct {
	action, outcome string
}

type fakeRecorder struct {
	mu   sync.Mutex
	recs []recorded
}

func (r *fakeRecorder) Record(action string, _ any, outcome, _, _ string) (*models.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, recorded{action, outcome})
	return &models.AuditEntry{Action: action, Outcome: outcome}, nil
}

func newEngine(c Collaborator, s Snapshot, pub Publisher, rec Recorder) *Engine {
	logger := log.New(io.Discard)
	machine := syncstate.New(true, base, logger)
	machine.Connecting()
	machine.Connected()
	return NewEngine(c, s, Options{
		Interval:  time.Hour,
		Machine:   machine,
		Publisher: pub,
		Recorder:  rec,
		Logger:    logger,
		Now:       func() time.Time { return base.Add(time.Minute) },
	})
}

func TestSyncNow_EmptySnapshotTakesRemote(t *testing.T) {
	collab := &fakeCollab{tasks: []models.Task{task("x", 0, "X"), task("y", 0, "Y")}}
	snap := &memSnapshot{}
	pub := &capture{}
	e := newEngine(collab, snap, pub, nil)

	rep, err := e.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if !rep.Emitted || pub.count() != 1 {
		t.Fatalf("expected one tasks_synced event, got %d", pub.count())
	}
	if diff := cmp.Diff([]string{"x", "y"}, ids(pub.events[0].Tasks)); diff != "" {
		t.Errorf("event payload (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"x", "y"}, ids(snap.tasks)); diff != "" {
		t.Errorf("snapshot (-want +got):\n%s", diff)
	}

	st := e.Machine().State()
	if st.IsSyncing || !st.LastSyncTime.Equal(base.Add(time.Minute)) {
		t.Errorf("state after pass: %+v", st)
	}
}

func TestSyncNow_NoChangeNoEvent(t *testing.T) {
	tasks := []models.Task{task("x", 0, "X")}
	collab := &fakeCollab{tasks: tasks}
	snap := &memSnapshot{tasks: tasks}
	pub := &capture{}
	e := newEngine(collab, snap, pub, nil)

	rep, err := e.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if rep.Emitted || pub.count() != 0 || snap.saves != 0 {
		t.Errorf("unchanged pass emitted=%v events=%d saves=%d", rep.Emitted, pub.count(), snap.saves)
	}
}

func TestSyncNow_RemoteEditIsEmitted(t *testing.T) {
	collab := &fakeCollab{tasks: []models.Task{task("x", 0, "renamed")}}
	snap := &memSnapshot{tasks: []models.Task{task("x", 0, "X")}}
	pub := &capture{}
	e := newEngine(collab, snap, pub, nil)

	if _, err := e.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if pub.count() != 1 || snap.tasks[0].Title != "renamed" {
		t.Errorf("remote edit not applied: events=%d snapshot=%+v", pub.count(), snap.tasks)
	}
}

func TestSyncNow_PushesLocalWinners(t *testing.T) {
	collab := &fakeCollab{
		tasks:   []models.Task{task("a", 0, "remote")},
		pushErr: map[string]error{"bad": errors.New("rejected")},
	}
	snap := &memSnapshot{tasks: []models.Task{
		task("a", time.Hour, "local"),
		task("bad", 0, "B"),
		task("c", 0, "C"),
	}}
	rec := &fakeRecorder{}
	e := newEngine(collab, snap, &capture{}, rec)

	rep, err := e.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if rep.Pushed != 2 || rep.PushFailed != 1 {
		t.Errorf("pushed=%d failed=%d", rep.Pushed, rep.PushFailed)
	}
	if diff := cmp.Diff([]string{"a"}, collab.updated); diff != "" {
		t.Errorf("updated (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c"}, collab.created); diff != "" {
		t.Errorf("created (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "bad", "c"}, ids(snap.tasks)); diff != "" {
		t.Errorf("snapshot (-want +got):\n%s", diff)
	}
	if len(rec.recs) != 1 || rec.recs[0].outcome != "success" {
		t.Errorf("audit records = %+v", rec.recs)
	}
}

func TestSyncNow_PushedWinnerConverges(t *testing.T) {
	collab := &fakeCollab{tasks: []models.Task{task("x", 0, "remote")}, keepCreated: true}
	snap := &memSnapshot{tasks: []models.Task{task("x", time.Hour, "local")}}
	e := newEngine(collab, snap, &capture{}, nil)

	for i := 0; i < 3; i++ {
		if _, err := e.SyncNow(context.Background()); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}
	if diff := cmp.Diff([]string{"x"}, collab.updated); diff != "" {
		t.Errorf("updates pushed over three passes (-want +got):\n%s", diff)
	}
	got := snap.tasks[0]
	if got.Title != "local" || !got.CreatedAt.Equal(base) {
		t.Errorf("snapshot should hold the stored copy, got %+v", got)
	}
}

func TestSyncNow_ForgottenTasksAreNotPushedBack(t *testing.T) {
	collab := &fakeCollab{tasks: []models.Task{task("x", 0, "X")}}
	snap := &memSnapshot{tasks: []models.Task{task("x", 0, "X"), task("gone", 0, "Deleted")}}
	pub := &capture{}
	e := newEngine(collab, snap, pub, nil)

	e.Forget("gone")
	rep, err := e.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if len(collab.created) != 0 || rep.Pushed != 0 {
		t.Errorf("deleted task pushed back: created=%v", collab.created)
	}
	if diff := cmp.Diff([]string{"x"}, ids(snap.tasks)); diff != "" {
		t.Errorf("snapshot (-want +got):\n%s", diff)
	}
	if !rep.Emitted {
		t.Error("dropping a task should emit tasks_synced")
	}

	// Once applied, the id is no longer special.
	snap.tasks = append(snap.tasks, task("gone", 0, "Restored offline"))
	if _, err := e.SyncNow(context.Background()); err != nil {
		t.Fatalf("second SyncNow: %v", err)
	}
	if diff := cmp.Diff([]string{"gone"}, collab.created); diff != "" {
		t.Errorf("created (-want +got):\n%s", diff)
	}
}

func TestSyncNow_FetchFailureKeepsState(t *testing.T) {
	collab := &fakeCollab{getErr: errors.New("network down")}
	snap := &memSnapshot{tasks: []models.Task{task("x", 0, "X")}}
	rec := &fakeRecorder{}
	e := newEngine(collab, snap, &capture{}, rec)
	e.Machine().AddPending(2)

	if _, err := e.SyncNow(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	st := e.Machine().State()
	if st.IsSyncing || st.PendingChanges != 2 || !st.LastSyncTime.Equal(base) {
		t.Errorf("failed pass mutated bookkeeping: %+v", st)
	}
	if st.ConnectionStatus != syncstate.StatusError {
		t.Errorf("status = %s, want error", st.ConnectionStatus)
	}
	if snap.saves != 0 {
		t.Error("snapshot written on failed pass")
	}
	if len(rec.recs) != 1 || rec.recs[0].outcome != "failure" {
		t.Errorf("audit records = %+v", rec.recs)
	}

	collab.mu.Lock()
	collab.getErr = nil
	collab.tasks = []models.Task{task("x", 0, "X")}
	collab.mu.Unlock()
	if _, err := e.SyncNow(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := e.Machine().State(); got.ConnectionStatus != syncstate.StatusConnected || got.PendingChanges != 0 {
		t.Errorf("state after recovery: %+v", got)
	}
}

func TestSyncNow_SaveFailureAborts(t *testing.T) {
	collab := &fakeCollab{tasks: []models.Task{task("x", 0, "X")}}
	snap := &memSnapshot{saveErr: errors.New("disk full")}
	pub := &capture{}
	e := newEngine(collab, snap, pub, nil)

	if _, err := e.SyncNow(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if pub.count() != 0 {
		t.Error("event emitted although the snapshot was not saved")
	}
}

func TestSyncNow_Guards(t *testing.T) {
	collab := &fakeCollab{block: make(chan struct{})}
	e := newEngine(collab, &memSnapshot{}, &capture{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := e.SyncNow(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !e.Machine().State().IsSyncing && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := e.SyncNow(context.Background()); !errors.Is(err, ErrSyncInFlight) {
		t.Errorf("overlapping pass err = %v", err)
	}

	close(collab.block)
	if err := <-done; err != nil {
		t.Fatalf("first pass: %v", err)
	}

	e.Machine().GoOffline()
	if _, err := e.SyncNow(context.Background()); !errors.Is(err, ErrOffline) {
		t.Errorf("offline pass err = %v", err)
	}
}

func TestSyncNow_PassTimeout(t *testing.T) {
	collab := &fakeCollab{block: make(chan struct{})}
	defer close(collab.block)
	e := newEngine(collab, &memSnapshot{}, &capture{}, nil)
	e.passTimeout = 20 * time.Millisecond

	_, err := e.SyncNow(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if e.Machine().State().IsSyncing {
		t.Error("still syncing after timeout")
	}
}

func TestTriggerRunsPass(t *testing.T) {
	collab := &fakeCollab{tasks: []models.Task{task("x", 0, "X")}}
	pub := &capture{}
	e := newEngine(collab, &memSnapshot{}, pub, nil)

	e.Start(context.Background())
	defer e.Stop()
	e.Trigger()

	deadline := time.Now().Add(2 * time.Second)
	for pub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pub.count() != 1 {
		t.Fatalf("triggered pass did not emit, events=%d", pub.count())
	}
}

func TestIntervalPausedWhileDisconnected(t *testing.T) {
	collab := &fakeCollab{}
	logger := log.New(io.Discard)
	machine := syncstate.New(true, base, logger)
	e := NewEngine(collab, &memSnapshot{}, Options{Interval: 5 * time.Millisecond, Machine: machine, Logger: logger})

	e.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	e.Stop()

	collab.mu.Lock()
	defer collab.mu.Unlock()
	if collab.getCalls != 0 {
		t.Errorf("interval ran %d passes while disconnected", collab.getCalls)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	e := newEngine(&fakeCollab{}, &memSnapshot{}, nil, nil)
	e.Stop()
	e.Start(context.Background())
	e.Stop()
	e.Stop()
}
