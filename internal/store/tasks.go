package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/models"
	"github.com/google/uuid"
)

// --- Task Operations ---

const taskColumns = `id, title, notes, created_at, type, due_date, category, assigned_to, archived, recurrence_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (models.Task, error) {
	var task models.Task
	var notes, dueDate, category, assignedTo, recurrence sql.NullString
	var archived int

	err := row.Scan(&task.ID, &task.Title, &notes, &task.CreatedAt, &task.Type,
		&dueDate, &category, &assignedTo, &archived, &recurrence)
	if err != nil {
		return task, err
	}

	task.Notes = notes.String
	task.Category = models.Category(category.String)
	task.AssignedTo = assignedTo.String
	task.Archived = archived != 0
	task.CreatedAt = task.CreatedAt.UTC()

	if dueDate.Valid && dueDate.String != "" {
		d, err := calendar.Parse(dueDate.String)
		if err != nil {
			return task, fmt.Errorf("task %s due date: %w", task.ID, err)
		}
		task.DueDate = &d
	}
	if recurrence.Valid && recurrence.String != "" {
		var rec models.Recurrence
		if err := json.Unmarshal([]byte(recurrence.String), &rec); err != nil {
			return task, fmt.Errorf("task %s recurrence: %w", task.ID, err)
		}
		task.Recurrence = &rec
	}
	return task, nil
}

// taskArgs returns the mutable column values of t in taskColumns order,
// skipping id and created_at.
func taskArgs(t models.Task) ([]any, error) {
	var due any
	if t.DueDate != nil {
		due = t.DueDate.String()
	}
	var rec any
	if t.Recurrence != nil {
		data, err := json.Marshal(t.Recurrence)
		if err != nil {
			return nil, fmt.Errorf("encode recurrence: %w", err)
		}
		rec = string(data)
	}
	return []any{
		t.Title, nullString(t.Notes), string(t.Type), due,
		nullString(string(t.Category)), nullString(t.AssignedTo), boolInt(t.Archived), rec,
	}, nil
}

// CreateTask inserts a task. An empty id or zero creation time is filled in.
func (s *Store) CreateTask(t models.Task) (*models.Task, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = "task_" + uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.CreatedAt = t.CreatedAt.UTC()

	args, err := taskArgs(t)
	if err != nil {
		return nil, err
	}
	args = append([]any{t.ID, t.CreatedAt}, args...)

	_, err = s.db.Exec(
		`INSERT INTO tasks (id, created_at, title, notes, type, due_date, category, assigned_to, archived, recurrence_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("task %s: %w", t.ID, ErrConflict)
		}
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return s.GetTask(t.ID)
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(id string) (*models.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return &task, nil
}

// ListTasks returns all tasks, newest first.
func (s *Store) ListTasks() ([]models.Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdateTask replaces the mutable fields of an existing task. The creation
// timestamp is never changed.
func (s *Store) UpdateTask(t models.Task) (*models.Task, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	args, err := taskArgs(t)
	if err != nil {
		return nil, err
	}
	args = append(args, t.ID)

	result, err := s.db.Exec(
		`UPDATE tasks SET title = ?, notes = ?, type = ?, due_date = ?, category = ?,
		 assigned_to = ?, archived = ?, recurrence_json = ? WHERE id = ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
	}
	return s.GetTask(t.ID)
}

// DeleteTask removes a task and its completions. Deleting a missing task is
// not an error.
func (s *Store) DeleteTask(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM completions WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("delete completions: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
