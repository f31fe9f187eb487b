// Package config loads familydash settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fentz26/familydash/internal/reminders"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// DirName is the per-user state directory under the home directory.
const DirName = ".familydash"

// Config holds every familydash setting.
type Config struct {
	// Listen is the daemon's HTTP listen address.
	Listen string `yaml:"listen"`
	// APIURL is where clients reach the daemon.
	APIURL       string `yaml:"api_url"`
	DBPath       string `yaml:"db_path"`
	SnapshotPath string `yaml:"snapshot_path"`
	DeviceIDPath string `yaml:"device_id_path"`

	Sync      SyncConfig       `yaml:"sync"`
	Cache     CacheConfig      `yaml:"cache"`
	Broadcast BroadcastConfig  `yaml:"broadcast"`
	Reminders reminders.Config `yaml:"reminders"`
	Log       LogConfig        `yaml:"log"`
}

// SyncConfig tunes the reconciliation loop.
type SyncConfig struct {
	Interval       time.Duration `yaml:"interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PassTimeout    time.Duration `yaml:"pass_timeout"`
}

// CacheConfig bounds the instance cache.
type CacheConfig struct {
	MaxEntries    int     `yaml:"max_entries"`
	EvictFraction float64 `yaml:"evict_fraction"`
}

// BroadcastConfig tunes cross-process event mirroring.
type BroadcastConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Dir returns ~/.familydash, or a relative .familydash when the home
// directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(home, DirName)
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		Listen:       "127.0.0.1:7466",
		APIURL:       "http://127.0.0.1:7466",
		DBPath:       filepath.Join(dir, "familydash.db"),
		SnapshotPath: filepath.Join(dir, "tasks.json"),
		DeviceIDPath: filepath.Join(dir, "device_id"),
		Sync: SyncConfig{
			Interval:       30 * time.Second,
			RequestTimeout: 10 * time.Second,
			PassTimeout:    30 * time.Second,
		},
		Cache: CacheConfig{
			MaxEntries:    100,
			EvictFraction: 0.2,
		},
		Broadcast: BroadcastConfig{
			TTL:          time.Second,
			PollInterval: 500 * time.Millisecond,
		},
		Reminders: *reminders.DefaultConfig(),
		Log:       LogConfig{Level: "info"},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file yields
// the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg to path, creating parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen is required", ErrInvalidConfig)
	}
	if c.APIURL == "" {
		return fmt.Errorf("%w: api_url is required", ErrInvalidConfig)
	}
	if c.DBPath == "" || c.SnapshotPath == "" || c.DeviceIDPath == "" {
		return fmt.Errorf("%w: db_path, snapshot_path and device_id_path are required", ErrInvalidConfig)
	}
	if c.Sync.Interval <= 0 || c.Sync.RequestTimeout <= 0 || c.Sync.PassTimeout <= 0 {
		return fmt.Errorf("%w: sync durations must be positive", ErrInvalidConfig)
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("%w: cache.max_entries must be at least 1", ErrInvalidConfig)
	}
	if c.Cache.EvictFraction <= 0 || c.Cache.EvictFraction > 1 {
		return fmt.Errorf("%w: cache.evict_fraction must be in (0, 1]", ErrInvalidConfig)
	}
	if c.Broadcast.TTL <= 0 || c.Broadcast.PollInterval <= 0 {
		return fmt.Errorf("%w: broadcast durations must be positive", ErrInvalidConfig)
	}
	if err := c.Reminders.Validate(); err != nil {
		return fmt.Errorf("%w: reminders: %v", ErrInvalidConfig, err)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
