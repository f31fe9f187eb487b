// Package syncstate tracks connectivity and sync status and notifies
// observers of every change.
package syncstate

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Status is the connection status of the sync client.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusConnecting   Status = "connecting"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// State is a snapshot of the sync client.
type State struct {
	IsOnline         bool      `json:"is_online"`
	IsSyncing        bool      `json:"is_syncing"`
	LastSyncTime     time.Time `json:"last_sync_time"`
	PendingChanges   int       `json:"pending_changes"`
	ConnectionStatus Status    `json:"connection_status"`
}

// Observer receives a copy of the state after each change.
type Observer func(State)

// Unsubscribe removes an observer.
type Unsubscribe func()

// Machine owns the process-wide State. Observers are called synchronously,
// in registration order, after every mutation and outside the lock.
type Machine struct {
	logger *log.Logger

	mu        sync.Mutex
	state     State
	observers []observerEntry
	nextID    uint64
}

type observerEntry struct {
	id uint64
	fn Observer
}

// New creates a machine in the disconnected state.
func New(online bool, now time.Time, logger *log.Logger) *Machine {
	if logger == nil {
		logger = log.Default()
	}
	return &Machine{
		logger: logger,
		state: State{
			IsOnline:         online,
			LastSyncTime:     now,
			ConnectionStatus: StatusDisconnected,
		},
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn and returns its deregistration handle.
func (m *Machine) Subscribe(fn Observer) Unsubscribe {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.observers = append(m.observers, observerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			next := make([]observerEntry, 0, len(m.observers))
			for _, o := range m.observers {
				if o.id != id {
					next = append(next, o)
				}
			}
			m.observers = next
		})
	}
}

// update applies fn under the lock and publishes the result. It reports the
// value fn returned; a false result skips publishing.
func (m *Machine) update(fn func(*State) bool) bool {
	m.mu.Lock()
	if !fn(&m.state) {
		m.mu.Unlock()
		return false
	}
	snapshot := m.state
	observers := m.observers
	m.mu.Unlock()

	for _, o := range observers {
		m.notify(o, snapshot)
	}
	return true
}

func (m *Machine) notify(o observerEntry, s State) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("sync state observer failed", "observer", o.id, "panic", r)
		}
	}()
	o.fn(s)
}

// GoOnline records a network-online signal. The caller is expected to
// follow up with Connecting and then Connected or Failed.
func (m *Machine) GoOnline() {
	m.update(func(s *State) bool {
		s.IsOnline = true
		return true
	})
}

// GoOffline records a network-offline signal and forces disconnected.
func (m *Machine) GoOffline() {
	m.update(func(s *State) bool {
		s.IsOnline = false
		s.ConnectionStatus = StatusDisconnected
		return true
	})
}

// Connecting moves to connecting. It fails while offline.
func (m *Machine) Connecting() bool {
	return m.update(func(s *State) bool {
		if !s.IsOnline {
			return false
		}
		s.ConnectionStatus = StatusConnecting
		return true
	})
}

// Connected moves to connected. It fails while offline.
func (m *Machine) Connected() bool {
	return m.update(func(s *State) bool {
		if !s.IsOnline {
			return false
		}
		s.ConnectionStatus = StatusConnected
		return true
	})
}

// Failed moves to error after a failed connection attempt.
func (m *Machine) Failed() {
	m.update(func(s *State) bool {
		if !s.IsOnline {
			s.ConnectionStatus = StatusDisconnected
			return true
		}
		s.ConnectionStatus = StatusError
		return true
	})
}

// Disconnect moves to disconnected without changing the online flag.
func (m *Machine) Disconnect() {
	m.update(func(s *State) bool {
		s.ConnectionStatus = StatusDisconnected
		return true
	})
}

// BeginSync marks a reconciliation pass as in flight. It returns false if a
// pass is already running, in which case nothing changes.
func (m *Machine) BeginSync() bool {
	return m.update(func(s *State) bool {
		if s.IsSyncing {
			return false
		}
		s.IsSyncing = true
		return true
	})
}

// EndSync clears the in-flight flag. A successful pass also stamps the
// last sync time and resets the pending change count.
func (m *Machine) EndSync(success bool, at time.Time) {
	m.update(func(s *State) bool {
		s.IsSyncing = false
		if success {
			s.LastSyncTime = at
			s.PendingChanges = 0
		}
		return true
	})
}

// AddPending increases the pending local change count by n.
func (m *Machine) AddPending(n int) {
	m.update(func(s *State) bool {
		s.PendingChanges += n
		return true
	})
}
