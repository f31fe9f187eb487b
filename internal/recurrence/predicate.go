// Package recurrence expands task definitions into calendar instances.
package recurrence

import (
	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/models"
)

// IsActiveOn reports whether task produces an instance on date. Archived
// tasks never do.
func IsActiveOn(task models.Task, date calendar.Date) bool {
	if task.Archived {
		return false
	}
	switch task.Type {
	case models.TaskTypeOneOff:
		return task.DueDate != nil && *task.DueDate == date
	case models.TaskTypeRecurring:
		return task.Recurrence != nil && Matches(*task.Recurrence, date)
	default:
		return false
	}
}

// Matches applies the weekday and inclusive bound checks of rec to date.
// An empty weekday set never matches.
func Matches(rec models.Recurrence, date calendar.Date) bool {
	if !hasWeekday(rec.Days, int(date.Weekday())) {
		return false
	}
	if rec.StartDate != nil && date.Before(*rec.StartDate) {
		return false
	}
	if rec.EndDate != nil && date.After(*rec.EndDate) {
		return false
	}
	return true
}

func hasWeekday(days []int, weekday int) bool {
	for _, d := range days {
		if d == weekday {
			return true
		}
	}
	return false
}
