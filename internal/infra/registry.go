package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

const registryFileName = "daemon.json"

// FileRegistry implements domain.DaemonRegistry using a JSON file in the data directory.
type FileRegistry struct {
	path           string
	processManager domain.ProcessManager
}

// NewFileRegistry creates a registry in dataDir.
func NewFileRegistry(dataDir string, pm domain.ProcessManager) domain.DaemonRegistry {
	return NewFileRegistryWithPath(filepath.Join(dataDir, registryFileName), pm)
}

// NewFileRegistryWithPath creates a registry at a specific path (for testing).
func NewFileRegistryWithPath(path string, pm domain.ProcessManager) domain.DaemonRegistry {
	return &FileRegistry{
		path:           path,
		processManager: pm,
	}
}

// GetRegistryPath returns the registry file path.
func (r *FileRegistry) GetRegistryPath() string {
	return r.path
}

// Register saves the daemon's PID and version.
func (r *FileRegistry) Register(daemon domain.Daemon) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	// Two daemons racing on startup must not interleave read-modify-write
	lockPath := r.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	entry, _ := r.GetAll()
	if entry == nil {
		entry = &domain.RegistryEntry{Version: 1}
	}

	now := time.Now()
	entry.PID = daemon.PID
	entry.Role = string(daemon.Role)
	entry.StartedAt = daemon.StartedAt.Unix()
	if daemon.StartedAt.IsZero() {
		entry.StartedAt = now.Unix()
	}
	entry.LastHeartbeat = now.Unix()
	entry.AppVersion = daemon.AppVersion
	entry.Engine = daemon.Engine

	if os.Geteuid() == 0 {
		entry.Mode = string(ExecModeSystem)
	} else {
		entry.Mode = string(ExecModeUser)
	}

	return r.atomicWrite(entry)
}

// UpdateHeartbeat updates timestamp for liveness check.
func (r *FileRegistry) UpdateHeartbeat() error {
	entry, err := r.GetAll()
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("daemon not registered")
	}

	entry.LastHeartbeat = time.Now().Unix()
	return r.atomicWrite(entry)
}

// IsAlive checks if the registered daemon is running via PID.
func (r *FileRegistry) IsAlive() (bool, error) {
	entry, err := r.GetAll()
	if err != nil {
		return false, err
	}
	if entry == nil || entry.PID == 0 {
		return false, nil
	}
	return r.processManager.IsRunning(entry.PID), nil
}

// GetAll returns the registry state, or nil if the file does not exist.
func (r *FileRegistry) GetAll() (*domain.RegistryEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entry domain.RegistryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}

	return &entry, nil
}

// Clear removes the registry file. A missing file is not an error.
func (r *FileRegistry) Clear() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// atomicWrite writes registry to file atomically (write + rename).
func (r *FileRegistry) atomicWrite(entry *domain.RegistryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure FileRegistry implements domain.DaemonRegistry.
var _ domain.DaemonRegistry = (*FileRegistry)(nil)
