// Package reminders announces upcoming task instances ahead of time.
package reminders

import (
	"fmt"
	"time"
)

// Config defines reminder lead times and look-ahead windows. Due times are
// offsets from local midnight of the instance date.
type Config struct {
	// Enabled toggles reminder delivery.
	Enabled bool `yaml:"enabled"`
	// TaskLead is how long before a task instance is due to remind.
	TaskLead time.Duration `yaml:"task_lead"`
	// TaskWindow bounds how far ahead task instances are planned.
	TaskWindow time.Duration `yaml:"task_window"`
	// TaskDueAt is the time of day task instances fall due.
	TaskDueAt time.Duration `yaml:"task_due_at"`
	// MealLead is the lead time for meal-category instances.
	MealLead time.Duration `yaml:"meal_lead"`
	// MealWindow bounds how far ahead meal instances are planned.
	MealWindow time.Duration `yaml:"meal_window"`
	// MealDueAt is the time of day meals are served.
	MealDueAt time.Duration `yaml:"meal_due_at"`
	// SweepInterval is how often pending reminders are checked.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns the default reminder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		TaskLead:      time.Hour,
		TaskWindow:    7 * 24 * time.Hour,
		TaskDueAt:     9 * time.Hour,
		MealLead:      15 * time.Minute,
		MealWindow:    2 * time.Hour,
		MealDueAt:     18 * time.Hour,
		SweepInterval: time.Minute,
	}
}

// Validate checks that leads fit inside their windows and due times fall
// within a day.
func (c *Config) Validate() error {
	if c.TaskLead < 0 || c.MealLead < 0 {
		return fmt.Errorf("reminder leads must not be negative")
	}
	if c.TaskWindow < c.TaskLead {
		return fmt.Errorf("task_window %s is shorter than task_lead %s", c.TaskWindow, c.TaskLead)
	}
	if c.MealWindow < c.MealLead {
		return fmt.Errorf("meal_window %s is shorter than meal_lead %s", c.MealWindow, c.MealLead)
	}
	day := 24 * time.Hour
	if c.TaskDueAt < 0 || c.TaskDueAt >= day || c.MealDueAt < 0 || c.MealDueAt >= day {
		return fmt.Errorf("due times must be within a day")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}
	return nil
}
