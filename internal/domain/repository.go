package domain

import (
	"context"
	"time"
)

// Change is a single change notification for a record.
type Change struct {
	Key   string
	Value []byte
}

// RecordStore is a generic key-value persistence layer with change notification.
// Implementations: JSON files + fsnotify, SQLCipher database, in-memory.
type RecordStore interface {
	// Get returns the raw value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the raw value for key.
	Set(ctx context.Context, key string, value []byte) error

	// Watch streams changes to key until ctx is canceled.
	// Delivery may coalesce intermediate values; the last delivered value is the latest.
	Watch(ctx context.Context, key string) (<-chan Change, error)

	// Close releases resources (watchers, database connection).
	Close() error
}

// RuleEngine is the external capability that intercepts navigation and applies redirect rules.
type RuleEngine interface {
	// ListInstalledRules returns every rule the engine reports, including foreign ones.
	ListInstalledRules(ctx context.Context) ([]Rule, error)

	// InstallRules adds rules. IDs must not already be installed.
	InstallRules(ctx context.Context, rules []Rule) error

	// RemoveRules removes rules by ID. Unknown IDs are ignored.
	RemoveRules(ctx context.Context, ids []int) error
}

// ActivityTracker consumes the session-completed signal.
type ActivityTracker interface {
	NotifySessionCompleted(ctx context.Context) error
}

// Clock abstracts wall-clock time so timers can be tested.
type Clock interface {
	Now() time.Time
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// Kill terminates a process by PID.
	Kill(pid int) error

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// DaemonRegistry provides daemon discovery for the foreground process.
// Implementation: JSON file in the data directory.
type DaemonRegistry interface {
	// Register saves the daemon's PID and version.
	Register(daemon Daemon) error

	// UpdateHeartbeat updates timestamp for liveness check.
	UpdateHeartbeat() error

	// IsAlive checks if the registered daemon is running via PID.
	IsAlive() (bool, error)

	// GetAll returns the registry state, or nil if nothing is registered.
	GetAll() (*RegistryEntry, error)

	// Clear removes the registry (for clean restart).
	Clear() error

	// GetRegistryPath returns the registry file path (for tests).
	GetRegistryPath() string
}

// KeyProvider abstracts the source of the record store encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
