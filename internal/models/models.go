// Package models defines the core domain types for familydash.
package models

import (
	"time"

	"github.com/fentz26/familydash/internal/calendar"
)

// TaskType distinguishes one-off tasks from recurring ones.
type TaskType string

const (
	TaskTypeOneOff    TaskType = "one-off"
	TaskTypeRecurring TaskType = "recurring"
)

// Category is the household area a task belongs to.
type Category string

const (
	CategoryMeals  Category = "meals"
	CategoryChores Category = "chores"
	CategoryOther  Category = "other"
)

// Recurrence describes the weekly pattern of a recurring task.
type Recurrence struct {
	Days      []int          `json:"days"` // 0 (Sun) - 6 (Sat)
	StartDate *calendar.Date `json:"start_date,omitempty"`
	EndDate   *calendar.Date `json:"end_date,omitempty"`
}

// Task is a household task definition. Only one of DueDate and Recurrence is
// meaningful, depending on Type.
type Task struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Notes      string         `json:"notes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Type       TaskType       `json:"type"`
	DueDate    *calendar.Date `json:"due_date,omitempty"`
	Recurrence *Recurrence    `json:"recurrence,omitempty"`
	Category   Category       `json:"category,omitempty"`
	AssignedTo string         `json:"assigned_to,omitempty"`
	Archived   bool           `json:"archived,omitempty"`
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	out := t
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	if t.Recurrence != nil {
		r := *t.Recurrence
		r.Days = append([]int(nil), t.Recurrence.Days...)
		if t.Recurrence.StartDate != nil {
			d := *t.Recurrence.StartDate
			r.StartDate = &d
		}
		if t.Recurrence.EndDate != nil {
			d := *t.Recurrence.EndDate
			r.EndDate = &d
		}
		out.Recurrence = &r
	}
	return out
}

// Instance is a concrete occurrence of a task on a calendar day. Instances
// are derived and never stored.
type Instance struct {
	Task Task          `json:"task"`
	Date calendar.Date `json:"date"`
}

// Completion records that one instance of a task was done.
type Completion struct {
	ID           string         `json:"id"`
	TaskID       string         `json:"task_id"`
	CompletedAt  time.Time      `json:"completed_at"`
	InstanceDate *calendar.Date `json:"instance_date,omitempty"`
}

// Note is the free-text note attached to a calendar day.
type Note struct {
	Date    calendar.Date `json:"date"`
	Content string        `json:"content"`
}

// GroceryItem is one line of a day's shopping list.
type GroceryItem struct {
	ID         string        `json:"id"`
	Date       calendar.Date `json:"date"`
	Label      string        `json:"label"`
	Done       bool          `json:"done"`
	MealTaskID string        `json:"meal_task_id,omitempty"`
}

// GroceryPatch carries a partial grocery update.
type GroceryPatch struct {
	Label *string `json:"label,omitempty"`
	Done  *bool   `json:"done,omitempty"`
}

// CategoryStyle is the display configuration of a category.
type CategoryStyle struct {
	Key    Category `json:"key"`
	Name   string   `json:"name"`
	BG     string   `json:"bg,omitempty"`
	FG     string   `json:"fg,omitempty"`
	Border string   `json:"border,omitempty"`
}

// AuditEntry is a decision record for a state-mutating action.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	TaskID     string    `json:"task_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Equal reports whether t and o describe the same task. Timestamps compare
// by instant, not by location.
func (t Task) Equal(o Task) bool {
	if t.ID != o.ID || t.Title != o.Title || t.Notes != o.Notes ||
		t.Type != o.Type || t.Category != o.Category ||
		t.AssignedTo != o.AssignedTo || t.Archived != o.Archived {
		return false
	}
	if !t.CreatedAt.Equal(o.CreatedAt) || !dateEqual(t.DueDate, o.DueDate) {
		return false
	}
	return t.Recurrence.Equal(o.Recurrence)
}

// Equal reports whether r and o describe the same pattern.
func (r *Recurrence) Equal(o *Recurrence) bool {
	if r == nil || o == nil {
		return r == nil && o == nil
	}
	if len(r.Days) != len(o.Days) {
		return false
	}
	for i := range r.Days {
		if r.Days[i] != o.Days[i] {
			return false
		}
	}
	return dateEqual(r.StartDate, o.StartDate) && dateEqual(r.EndDate, o.EndDate)
}

func dateEqual(a, b *calendar.Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CategoryPatch carries a partial category update.
type CategoryPatch struct {
	Name   *string `json:"name,omitempty"`
	BG     *string `json:"bg,omitempty"`
	FG     *string `json:"fg,omitempty"`
	Border *string `json:"border,omitempty"`
}
