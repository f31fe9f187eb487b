package main

import (
	"testing"

	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/models"
)

func resetTaskFlags(t *testing.T) {
	t.Helper()
	taskOn, taskEvery, taskFrom, taskUntil = "", "", "", ""
	taskCategory, taskAssign, taskNotes = "", "", ""
	t.Cleanup(func() {
		taskOn, taskEvery, taskFrom, taskUntil = "", "", "", ""
		taskCategory, taskAssign, taskNotes = "", "", ""
	})
}

func TestBuildTask_OneOff(t *testing.T) {
	resetTaskFlags(t)
	taskOn = "2024-03-05"
	taskCategory = "chores"

	task, err := buildTask("Dentist")
	if err != nil {
		t.Fatalf("buildTask: %v", err)
	}
	if task.Type != models.TaskTypeOneOff {
		t.Errorf("Type = %q", task.Type)
	}
	if task.DueDate == nil || *task.DueDate != calendar.MustParse("2024-03-05") {
		t.Errorf("DueDate = %v", task.DueDate)
	}
	if task.Category != models.CategoryChores {
		t.Errorf("Category = %q", task.Category)
	}
}

func TestBuildTask_OneOffDefaultsToToday(t *testing.T) {
	resetTaskFlags(t)

	task, err := buildTask("Call school")
	if err != nil {
		t.Fatalf("buildTask: %v", err)
	}
	if task.DueDate == nil || *task.DueDate != calendar.Today() {
		t.Errorf("DueDate = %v, want today", task.DueDate)
	}
}

func TestBuildTask_Recurring(t *testing.T) {
	resetTaskFlags(t)
	taskEvery = "mon,thu"
	taskFrom = "2024-03-01"
	taskAssign = "sam"

	task, err := buildTask("Bins")
	if err != nil {
		t.Fatalf("buildTask: %v", err)
	}
	if task.Type != models.TaskTypeRecurring || task.Recurrence == nil {
		t.Fatalf("task = %+v, want recurring", task)
	}
	if got := weekdayList(task.Recurrence.Days); got != "mon,thu" {
		t.Errorf("days = %q", got)
	}
	if want := "every mon,thu from 2024-03-01"; when(task) != want {
		t.Errorf("when = %q, want %q", when(task), want)
	}
	if task.AssignedTo != "sam" {
		t.Errorf("AssignedTo = %q", task.AssignedTo)
	}
}

func TestBuildTask_Errors(t *testing.T) {
	tests := []struct {
		name string
		set  func()
	}{
		{"on with every", func() { taskOn = "2024-03-05"; taskEvery = "mon" }},
		{"from without every", func() { taskFrom = "2024-03-05" }},
		{"bad date", func() { taskOn = "03/05/2024" }},
		{"bad days", func() { taskEvery = "someday" }},
		{"bad category", func() { taskCategory = "garden" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetTaskFlags(t)
			tt.set()
			if _, err := buildTask("x"); err == nil {
				t.Error("expected error")
			}
		})
	}
}
