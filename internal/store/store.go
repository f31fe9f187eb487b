// Package store provides SQLite-backed persistence for familydash.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Store provides access to the familydash SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL lets the daemon and CLI processes share the file.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.seedCategories(); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed categories: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		notes TEXT,
		created_at DATETIME NOT NULL,
		type TEXT NOT NULL,
		due_date TEXT,
		category TEXT,
		assigned_to TEXT,
		archived INTEGER NOT NULL DEFAULT 0,
		recurrence_json TEXT
	);

	CREATE TABLE IF NOT EXISTS completions (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		completed_at DATETIME NOT NULL,
		instance_date TEXT,
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS notes (
		date_iso TEXT PRIMARY KEY,
		content TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS groceries (
		id TEXT PRIMARY KEY,
		date_iso TEXT NOT NULL,
		label TEXT NOT NULL,
		done INTEGER NOT NULL DEFAULT 0,
		meal_task_id TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS categories (
		key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		bg TEXT,
		fg TEXT,
		border TEXT,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS broadcast_slots (
		key TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		source TEXT NOT NULL,
		payload BLOB,
		created_ns INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		task_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_completions_task_id ON completions(task_id);
	CREATE INDEX IF NOT EXISTS idx_completions_instance_date ON completions(instance_date);
	CREATE INDEX IF NOT EXISTS idx_groceries_date ON groceries(date_iso);
	CREATE INDEX IF NOT EXISTS idx_broadcast_slots_created ON broadcast_slots(created_ns);
	CREATE INDEX IF NOT EXISTS idx_audit_log_task_id ON audit_log(task_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "unique constraint")
}
