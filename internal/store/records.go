package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/models"
	"github.com/google/uuid"
)

// --- Completion Operations ---

// AddCompletion records that taskID was done, optionally for one instance
// date.
func (s *Store) AddCompletion(taskID string, instanceDate *calendar.Date) (*models.Completion, error) {
	if taskID == "" {
		return nil, fmt.Errorf("%w: task id is required", ErrInvalidInput)
	}
	if _, err := s.GetTask(taskID); err != nil {
		return nil, err
	}

	c := &models.Completion{
		ID:          "comp_" + uuid.New().String(),
		TaskID:      taskID,
		CompletedAt: time.Now().UTC(),
	}
	var date any
	if instanceDate != nil {
		d := *instanceDate
		c.InstanceDate = &d
		date = d.String()
	}

	_, err := s.db.Exec(
		`INSERT INTO completions (id, task_id, completed_at, instance_date) VALUES (?, ?, ?, ?)`,
		c.ID, c.TaskID, c.CompletedAt, date,
	)
	if err != nil {
		return nil, fmt.Errorf("insert completion: %w", err)
	}
	return c, nil
}

// ListCompletions returns completions, optionally only those for date.
func (s *Store) ListCompletions(date *calendar.Date) ([]models.Completion, error) {
	query := `SELECT id, task_id, completed_at, instance_date FROM completions`
	var args []any
	if date != nil {
		query += ` WHERE instance_date = ?`
		args = append(args, date.String())
	}
	query += ` ORDER BY completed_at, rowid`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query completions: %w", err)
	}
	defer rows.Close()

	out := []models.Completion{}
	for rows.Next() {
		var c models.Completion
		var instance sql.NullString
		if err := rows.Scan(&c.ID, &c.TaskID, &c.CompletedAt, &instance); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		c.CompletedAt = c.CompletedAt.UTC()
		if instance.Valid && instance.String != "" {
			d, err := calendar.Parse(instance.String)
			if err != nil {
				return nil, fmt.Errorf("completion %s: %w", c.ID, err)
			}
			c.InstanceDate = &d
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RemoveCompletions deletes the completions of taskID, only those for
// instanceDate when it is set. It returns the number removed.
func (s *Store) RemoveCompletions(taskID string, instanceDate *calendar.Date) (int64, error) {
	if taskID == "" {
		return 0, fmt.Errorf("%w: task id is required", ErrInvalidInput)
	}
	var result sql.Result
	var err error
	if instanceDate != nil {
		result, err = s.db.Exec(`DELETE FROM completions WHERE task_id = ? AND instance_date = ?`, taskID, instanceDate.String())
	} else {
		result, err = s.db.Exec(`DELETE FROM completions WHERE task_id = ?`, taskID)
	}
	if err != nil {
		return 0, fmt.Errorf("delete completions: %w", err)
	}
	return result.RowsAffected()
}

// IsCompleted reports whether the instance of taskID on date is done.
func (s *Store) IsCompleted(taskID string, date calendar.Date) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(1) FROM completions WHERE task_id = ? AND instance_date = ?`,
		taskID, date.String(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query completion: %w", err)
	}
	return n > 0, nil
}

// --- Note Operations ---

// GetNote returns the note for date. A missing note has empty content.
func (s *Store) GetNote(date calendar.Date) (models.Note, error) {
	note := models.Note{Date: date}
	err := s.db.QueryRow(`SELECT content FROM notes WHERE date_iso = ?`, date.String()).Scan(&note.Content)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return note, fmt.Errorf("query note: %w", err)
	}
	return note, nil
}

// SaveNote creates or replaces the note for date.
func (s *Store) SaveNote(date calendar.Date, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO notes (date_iso, content) VALUES (?, ?)
		 ON CONFLICT(date_iso) DO UPDATE SET content = excluded.content`,
		date.String(), content,
	)
	if err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	return nil
}

// DeleteNote removes the note for date.
func (s *Store) DeleteNote(date calendar.Date) error {
	if _, err := s.db.Exec(`DELETE FROM notes WHERE date_iso = ?`, date.String()); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

// --- Grocery Operations ---

const groceryColumns = `id, date_iso, label, done, meal_task_id`

func scanGrocery(row rowScanner) (models.GroceryItem, error) {
	var item models.GroceryItem
	var date string
	var done int
	var meal sql.NullString
	if err := row.Scan(&item.ID, &date, &item.Label, &done, &meal); err != nil {
		return item, err
	}
	d, err := calendar.Parse(date)
	if err != nil {
		return item, fmt.Errorf("grocery %s: %w", item.ID, err)
	}
	item.Date = d
	item.Done = done != 0
	item.MealTaskID = meal.String
	return item, nil
}

// AddGrocery appends an item to the list for date.
func (s *Store) AddGrocery(date calendar.Date, label, mealTaskID string) (*models.GroceryItem, error) {
	label = strings.TrimSpace(label)
	if date.IsZero() || label == "" {
		return nil, fmt.Errorf("%w: date and label are required", ErrInvalidInput)
	}
	item := &models.GroceryItem{
		ID:         "item_" + uuid.New().String(),
		Date:       date,
		Label:      label,
		MealTaskID: mealTaskID,
	}
	_, err := s.db.Exec(
		`INSERT INTO groceries (id, date_iso, label, done, meal_task_id, created_at) VALUES (?, ?, ?, 0, ?, ?)`,
		item.ID, date.String(), item.Label, nullString(mealTaskID), time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert grocery: %w", err)
	}
	return item, nil
}

// ListGroceries returns items newest first, optionally only for date.
func (s *Store) ListGroceries(date *calendar.Date) ([]models.GroceryItem, error) {
	query := `SELECT ` + groceryColumns + ` FROM groceries`
	var args []any
	if date != nil {
		query += ` WHERE date_iso = ?`
		args = append(args, date.String())
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query groceries: %w", err)
	}
	defer rows.Close()

	out := []models.GroceryItem{}
	for rows.Next() {
		item, err := scanGrocery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grocery: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// UpdateGrocery applies patch to the item with id. Nil fields are kept.
func (s *Store) UpdateGrocery(id string, patch models.GroceryPatch) (*models.GroceryItem, error) {
	var label, done any
	if patch.Label != nil {
		l := strings.TrimSpace(*patch.Label)
		if l == "" {
			return nil, fmt.Errorf("%w: label must not be empty", ErrInvalidInput)
		}
		label = l
	}
	if patch.Done != nil {
		done = boolInt(*patch.Done)
	}

	result, err := s.db.Exec(
		`UPDATE groceries SET label = COALESCE(?, label), done = COALESCE(?, done) WHERE id = ?`,
		label, done, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update grocery: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("grocery %s: %w", id, ErrNotFound)
	}

	item, err := scanGrocery(s.db.QueryRow(`SELECT `+groceryColumns+` FROM groceries WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("query grocery: %w", err)
	}
	return &item, nil
}

// DeleteGrocery removes the item with id.
func (s *Store) DeleteGrocery(id string) error {
	if _, err := s.db.Exec(`DELETE FROM groceries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete grocery: %w", err)
	}
	return nil
}
