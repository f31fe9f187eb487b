package realtime

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fentz26/familydash/internal/events"
	"github.com/natefinch/atomic"
)

// LoadDeviceID returns the device id stored at path, creating one on first
// use.
func LoadDeviceID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read device id: %w", err)
	}

	id := events.NewSourceID()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create device id directory: %w", err)
	}
	if err := atomic.WriteFile(path, strings.NewReader(id+"\n")); err != nil {
		return "", fmt.Errorf("write device id: %w", err)
	}
	return id, nil
}
