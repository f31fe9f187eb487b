package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fentz26/familydash/internal/models"
)

// DefaultCategories are seeded into an empty database.
var DefaultCategories = []models.CategoryStyle{
	{Key: models.CategoryMeals, Name: "Meals", BG: "#fff8f6", FG: "#8b3d2e", Border: "#ffe6dc"},
	{Key: models.CategoryChores, Name: "Chores", BG: "#f6fff8", FG: "#2a7f48", Border: "#dcffdf"},
	{Key: models.CategoryOther, Name: "Other", BG: "#f3f2ff", FG: "#4a2e8f", Border: "#ebe9ff"},
}

// --- Category Operations ---

func (s *Store) seedCategories() error {
	for i, c := range DefaultCategories {
		_, err := s.db.Exec(
			`INSERT OR IGNORE INTO categories (key, name, bg, fg, border, position) VALUES (?, ?, ?, ?, ?, ?)`,
			string(c.Key), c.Name, c.BG, c.FG, c.Border, i,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListCategories returns the category styles in display order.
func (s *Store) ListCategories() ([]models.CategoryStyle, error) {
	rows, err := s.db.Query(`SELECT key, name, bg, fg, border FROM categories ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []models.CategoryStyle
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCategory(row rowScanner) (models.CategoryStyle, error) {
	var c models.CategoryStyle
	var key string
	var bg, fg, border sql.NullString
	if err := row.Scan(&key, &c.Name, &bg, &fg, &border); err != nil {
		return c, err
	}
	c.Key = models.Category(key)
	c.BG, c.FG, c.Border = bg.String, fg.String, border.String
	return c, nil
}

// UpdateCategory applies patch to the category with key.
func (s *Store) UpdateCategory(key models.Category, patch models.CategoryPatch) (*models.CategoryStyle, error) {
	result, err := s.db.Exec(
		`UPDATE categories SET name = COALESCE(?, name), bg = COALESCE(?, bg),
		 fg = COALESCE(?, fg), border = COALESCE(?, border) WHERE key = ?`,
		optional(patch.Name), optional(patch.BG), optional(patch.FG), optional(patch.Border), string(key),
	)
	if err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("category %s: %w", key, ErrNotFound)
	}

	c, err := scanCategory(s.db.QueryRow(`SELECT key, name, bg, fg, border FROM categories WHERE key = ?`, string(key)))
	if err != nil {
		return nil, fmt.Errorf("query category: %w", err)
	}
	return &c, nil
}

func optional(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// --- Setting Operations ---

// GetSetting returns the JSON value stored under key, or nil if unset.
func (s *Store) GetSetting(key string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query setting: %w", err)
	}
	return json.RawMessage(value), nil
}

// SetSetting stores value under key. value must be valid JSON.
func (s *Store) SetSetting(key string, value json.RawMessage) error {
	if key == "" {
		return fmt.Errorf("%w: setting key is required", ErrInvalidInput)
	}
	if !json.Valid(value) {
		return fmt.Errorf("%w: setting %s is not valid JSON", ErrInvalidInput, key)
	}
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(value),
	)
	if err != nil {
		return fmt.Errorf("save setting: %w", err)
	}
	return nil
}
