// Package snapshot persists the device's last merged task list.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fentz26/familydash/internal/models"
	"github.com/natefinch/atomic"
)

const filePerms = 0o600

// ErrCorrupt is returned when the snapshot file cannot be decoded.
var ErrCorrupt = errors.New("snapshot corrupt")

type document struct {
	Version int           `json:"version"`
	Tasks   []models.Task `json:"tasks"`
}

// File is a snapshot stored as a JSON document.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a snapshot at path. The file is created on first Save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the snapshot location.
func (f *File) Path() string {
	return f.path
}

// Load reads the snapshot. A missing file is an empty snapshot.
func (f *File) Load(_ context.Context) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.Task{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	if doc.Tasks == nil {
		doc.Tasks = []models.Task{}
	}
	return doc.Tasks, nil
}

// Save replaces the snapshot atomically.
func (f *File) Save(_ context.Context, tasks []models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if tasks == nil {
		tasks = []models.Task{}
	}
	data, err := json.MarshalIndent(document{Version: 1, Tasks: tasks}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	// atomic.WriteFile does not set permissions on new files.
	if err := os.Chmod(f.path, filePerms); err != nil {
		return fmt.Errorf("chmod snapshot: %w", err)
	}
	return nil
}
