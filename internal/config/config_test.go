package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"
)

func TestLoadConfig_Missing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("missing file should yield defaults (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
listen: 0.0.0.0:9000
sync:
  interval: 1m
cache:
  max_entries: 10
reminders:
  meal_lead: 30m
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Sync.Interval != time.Minute {
		t.Errorf("Sync.Interval = %s, want 1m", cfg.Sync.Interval)
	}
	if cfg.Sync.PassTimeout != 30*time.Second {
		t.Errorf("unset PassTimeout = %s, want default 30s", cfg.Sync.PassTimeout)
	}
	if cfg.Cache.MaxEntries != 10 || cfg.Cache.EvictFraction != 0.2 {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Reminders.MealLead != 30*time.Minute || cfg.Reminders.TaskLead != time.Hour {
		t.Errorf("Reminders = %+v", cfg.Reminders)
	}
	if cfg.LogLevel() != log.DebugLevel {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel())
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "bad yaml", data: "listen: [unclosed"},
		{name: "zero cache", data: "cache:\n  max_entries: 0\n"},
		{name: "fraction above one", data: "cache:\n  evict_fraction: 1.5\n"},
		{name: "bad level", data: "log:\n  level: loud\n"},
		{name: "lead beyond window", data: "reminders:\n  meal_window: 5m\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestValidate_Sentinel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.Interval = 0
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:8123"
	cfg.Reminders.TaskDueAt = 7*time.Hour + 30*time.Minute

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	if err := SaveConfig(path, nil); err == nil {
		t.Error("SaveConfig(nil) should fail")
	}
}
