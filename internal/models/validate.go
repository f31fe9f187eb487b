package models

import (
	"errors"
	"fmt"
)

// ErrInvalidTask is returned by Validate for malformed task definitions.
var ErrInvalidTask = errors.New("invalid task")

// Validate checks the fields a store must reject. An empty weekday set is
// allowed: such a task is legal but never produces an instance.
func (t Task) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	switch t.Type {
	case TaskTypeOneOff:
	case TaskTypeRecurring:
		if t.Recurrence == nil {
			return fmt.Errorf("%w: recurring task needs a recurrence", ErrInvalidTask)
		}
		for _, d := range t.Recurrence.Days {
			if d < 0 || d > 6 {
				return fmt.Errorf("%w: weekday %d out of range", ErrInvalidTask, d)
			}
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTask, t.Type)
	}
	switch t.Category {
	case "", CategoryMeals, CategoryChores, CategoryOther:
	default:
		return fmt.Errorf("%w: unknown category %q", ErrInvalidTask, t.Category)
	}
	return nil
}
