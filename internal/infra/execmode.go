package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser keeps all state under the user's home directory
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root and may edit the system hosts file
	ExecModeSystem ExecMode = "system"
)

// DefaultHostsPath is the system hosts file managed by the hosts engine.
const DefaultHostsPath = "/etc/hosts"

// ExecModeConfig holds paths and settings based on execution mode.
type ExecModeConfig struct {
	Mode      ExecMode
	DataDir   string // Records, registry, config and key live here
	LogPath   string // Daemon log file
	HostsPath string // Hosts file for the hosts rule engine
	IsRoot    bool
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return &ExecModeConfig{
			Mode:      ExecModeSystem,
			DataDir:   "/var/lib/focustab",
			LogPath:   "/var/log/focustab.log",
			HostsPath: DefaultHostsPath,
			IsRoot:    true,
		}
	}
	return GetUserModeConfig()
}

// GetUserModeConfig returns user mode config regardless of current euid.
// Under sudo the invoking user's home directory is used.
func GetUserModeConfig() *ExecModeConfig {
	dataDir := filepath.Join(GetRealUserHome(), ".focustab")
	return &ExecModeConfig{
		Mode:      ExecModeUser,
		DataDir:   dataDir,
		LogPath:   filepath.Join(dataDir, "focustab.log"),
		HostsPath: DefaultHostsPath,
		IsRoot:    os.Geteuid() == 0,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
