// Package broadcast provides short-lived key/value slots that let processes
// sharing one origin (the same database file) observe each other's events.
package broadcast

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// KeyPrefix starts every slot key.
const KeyPrefix = "familydash:"

// Slot is one broadcast record. Slots are deleted shortly after being written.
type Slot struct {
	Key       string    `json:"key"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Channel is a shared slot space.
type Channel interface {
	Put(ctx context.Context, slot Slot) error
	Delete(ctx context.Context, key string) error
	// Since returns slots created strictly after t, oldest first.
	Since(ctx context.Context, t time.Time) ([]Slot, error)
}

// SlotKey builds the key for an event type written at t.
func SlotKey(eventType string, t time.Time) string {
	var b strings.Builder
	b.WriteString(KeyPrefix)
	b.WriteString(eventType)
	b.WriteByte(':')
	b.WriteString(formatNanos(t))
	return b.String()
}

func formatNanos(t time.Time) string {
	return t.UTC().Format("20060102T150405.000000000")
}

// Memory is an in-process Channel.
type Memory struct {
	mu    sync.Mutex
	slots map[string]Slot
}

// NewMemory creates an empty in-process channel.
func NewMemory() *Memory {
	return &Memory{slots: make(map[string]Slot)}
}

// Put stores slot, replacing any slot with the same key.
func (m *Memory) Put(_ context.Context, slot Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot.Key] = slot
	return nil
}

// Delete removes the slot at key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, key)
	return nil
}

// Since returns slots newer than t, oldest first.
func (m *Memory) Since(_ context.Context, t time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Slot
	for _, s := range m.slots {
		if s.CreatedAt.After(t) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Len returns the number of live slots.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
