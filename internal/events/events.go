// Package events provides the typed, ordered in-process event bus.
package events

import (
	"time"

	"github.com/fentz26/familydash/internal/models"
)

// Type identifies the kind of change an event describes.
type Type string

const (
	TaskCreated       Type = "task_created"
	TaskUpdated       Type = "task_updated"
	TaskDeleted       Type = "task_deleted"
	CompletionAdded   Type = "completion_added"
	CompletionRemoved Type = "completion_removed"
	ProfileCreated    Type = "profile_created"
	ProfileUpdated    Type = "profile_updated"
	ProfileDeleted    Type = "profile_deleted"
	NoteSaved         Type = "note_saved"
	GroceryChanged    Type = "grocery_changed"
	TasksSynced       Type = "tasks_synced"
)

// Types lists every known event type.
var Types = []Type{
	TaskCreated, TaskUpdated, TaskDeleted,
	CompletionAdded, CompletionRemoved,
	ProfileCreated, ProfileUpdated, ProfileDeleted,
	NoteSaved, GroceryChanged, TasksSynced,
}

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// IsTaskMutation reports whether t changes the task set.
func (t Type) IsTaskMutation() bool {
	return t == TaskCreated || t == TaskUpdated || t == TaskDeleted
}

// Event is one change notification.
type Event struct {
	Type      Type      `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// Source identifies the execution context that emitted the event.
	Source string `json:"source"`
	// Origin is OriginSync when a reconciliation push caused the change.
	Origin string `json:"origin,omitempty"`
}

// OriginSync marks changes written back by the reconciliation engine.
const OriginSync = "sync"

// FromSync reports whether the event was caused by a reconciliation push
// rather than a user edit.
func (e Event) FromSync() bool {
	return e.Origin == OriginSync
}

// TaskRef is the payload of task_updated and task_deleted events.
type TaskRef struct {
	ID string `json:"id"`
}

// SyncedPayload is the payload of tasks_synced events.
type SyncedPayload struct {
	Tasks []models.Task `json:"tasks"`
}

// TaskIDs extracts the task ids an event refers to, if its payload is one of
// the task payload shapes.
func (e Event) TaskIDs() []string {
	switch d := e.Data.(type) {
	case models.Task:
		return []string{d.ID}
	case *models.Task:
		if d != nil {
			return []string{d.ID}
		}
	case TaskRef:
		return []string{d.ID}
	case SyncedPayload:
		ids := make([]string, len(d.Tasks))
		for i, t := range d.Tasks {
			ids[i] = t.ID
		}
		return ids
	}
	return nil
}
