// Package config handles configuration loading and validation for focustab.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileName is the config file name inside the data directory.
const FileName = "config.toml"

// Storage backends.
const (
	StorageFile      = "file"
	StorageEncrypted = "encrypted"
	StorageMemory    = "memory"
)

// Rule engine backends.
const (
	EngineHosts  = "hosts"
	EngineMemory = "memory"
)

// Duration is a time.Duration written as "25m" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete focustab configuration.
type Config struct {
	Timer       TimerConfig       `toml:"timer"`
	Storage     StorageConfig     `toml:"storage"`
	Blocking    BlockingConfig    `toml:"blocking"`
	Placeholder PlaceholderConfig `toml:"placeholder"`
	Daemon      DaemonConfig      `toml:"daemon"`
	Logging     LoggingConfig     `toml:"logging"`
	Activity    ActivityConfig    `toml:"activity"`
}

// TimerConfig controls the focus countdown.
type TimerConfig struct {
	Duration Duration `toml:"duration"`
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	Backend string `toml:"backend"`
	// Dir overrides the record directory; defaults to <data dir>/records.
	Dir string `toml:"dir"`
}

// BlockingConfig controls the rule engine and rule allocation.
type BlockingConfig struct {
	Engine       string `toml:"engine"`
	HostsPath    string `toml:"hosts_path"`
	RedirectIP   string `toml:"redirect_ip"`
	RuleIDBase   int    `toml:"rule_id_base"`
	RuleIDLimit  int    `toml:"rule_id_limit"`
	Priority     int    `toml:"priority"`
	RedirectPath string `toml:"redirect_path"`
}

// PlaceholderConfig controls the local blocked-page server.
type PlaceholderConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// DaemonConfig controls the background blocker.
type DaemonConfig struct {
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
	ClearOnExit       bool     `toml:"clear_on_exit"`
}

// LoggingConfig controls zap output.
type LoggingConfig struct {
	Level string `toml:"level"`
	// File is the daemon log file; defaults to the exec-mode log path.
	File string `toml:"file"`
}

// ActivityConfig controls streak day boundaries.
type ActivityConfig struct {
	// Timezone is an IANA name; empty means the local zone.
	Timezone string `toml:"timezone"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Timer: TimerConfig{
			Duration: Duration{25 * time.Minute},
		},
		Storage: StorageConfig{
			Backend: StorageFile,
		},
		Blocking: BlockingConfig{
			Engine:       EngineHosts,
			HostsPath:    "/etc/hosts",
			RedirectIP:   "127.0.0.1",
			RuleIDBase:   1000,
			RuleIDLimit:  1000,
			Priority:     1,
			RedirectPath: "/blocked.html",
		},
		Placeholder: PlaceholderConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8089",
		},
		Daemon: DaemonConfig{
			HeartbeatInterval: Duration{30 * time.Second},
			ClearOnExit:       true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Path returns the config file path inside dataDir.
func Path(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}

// RecordDir returns the record store directory for dataDir.
func (c *Config) RecordDir(dataDir string) string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return filepath.Join(dataDir, "records")
}

// Location resolves the activity timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Activity.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Activity.Timezone)
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with FOCUSTAB_ and use underscores.
// Unparseable numeric or duration values are ignored.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("FOCUSTAB_TIMER_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Timer.Duration = Duration{d}
		}
	}
	if v := os.Getenv("FOCUSTAB_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("FOCUSTAB_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("FOCUSTAB_BLOCKING_ENGINE"); v != "" {
		c.Blocking.Engine = v
	}
	if v := os.Getenv("FOCUSTAB_HOSTS_PATH"); v != "" {
		c.Blocking.HostsPath = v
	}
	if v := os.Getenv("FOCUSTAB_REDIRECT_IP"); v != "" {
		c.Blocking.RedirectIP = v
	}
	if v := os.Getenv("FOCUSTAB_RULE_ID_BASE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Blocking.RuleIDBase = n
		}
	}
	if v := os.Getenv("FOCUSTAB_PLACEHOLDER_LISTEN"); v != "" {
		c.Placeholder.Listen = v
	}
	if v := os.Getenv("FOCUSTAB_PLACEHOLDER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Placeholder.Enabled = b
		}
	}
	if v := os.Getenv("FOCUSTAB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FOCUSTAB_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("FOCUSTAB_TIMEZONE"); v != "" {
		c.Activity.Timezone = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Timer.Duration.Duration < time.Second {
		return fmt.Errorf("timer.duration must be at least 1s, got %s", c.Timer.Duration)
	}

	switch c.Storage.Backend {
	case StorageFile, StorageEncrypted, StorageMemory:
	default:
		return fmt.Errorf("storage.backend must be one of file, encrypted, memory; got %q", c.Storage.Backend)
	}

	switch c.Blocking.Engine {
	case EngineHosts:
		if c.Blocking.HostsPath == "" {
			return fmt.Errorf("blocking.hosts_path is required for the hosts engine")
		}
	case EngineMemory:
	default:
		return fmt.Errorf("blocking.engine must be one of hosts, memory; got %q", c.Blocking.Engine)
	}

	if c.Blocking.RuleIDBase <= 0 {
		return fmt.Errorf("blocking.rule_id_base must be positive")
	}
	if c.Blocking.RuleIDLimit <= 0 {
		return fmt.Errorf("blocking.rule_id_limit must be positive")
	}
	if !strings.HasPrefix(c.Blocking.RedirectPath, "/") {
		return fmt.Errorf("blocking.redirect_path must start with /")
	}

	if c.Placeholder.Enabled && c.Placeholder.Listen == "" {
		return fmt.Errorf("placeholder.listen is required when the placeholder is enabled")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("activity.timezone: %w", err)
	}
	return nil
}
