package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

// StartDaemon spawns `focustab daemon` from the running executable.
// The daemon is detached from the parent process (runs independently).
func StartDaemon(args ...string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	return StartDaemonWithPath(executable, args...)
}

// StartDaemonWithPath spawns the daemon from a specific binary.
// args are appended after the "daemon" subcommand (e.g. --data-dir).
func StartDaemonWithPath(binaryPath string, args ...string) error {
	cmd := daemonCommand(binaryPath, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	// Not waited on; the child outlives us.
	return cmd.Process.Release()
}

func daemonCommand(binaryPath string, args ...string) *exec.Cmd {
	cmd := exec.Command(binaryPath, append([]string{"daemon"}, args...)...)

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	// No stdin/stdout/stderr - fully detached
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd
}

// EnsureRunning starts the daemon unless the registry reports a live one.
// Returns true if a new daemon was spawned.
func EnsureRunning(registry domain.DaemonRegistry, logger *zap.Logger, args ...string) (bool, error) {
	alive, err := registry.IsAlive()
	if err != nil {
		logger.Debug("daemon registry unreadable", zap.Error(err))
	}
	if alive {
		return false, nil
	}
	if err := StartDaemon(args...); err != nil {
		return false, err
	}
	logger.Info("blocker daemon spawned")
	return true, nil
}

// StopDaemon terminates the registered daemon and clears the registry.
// Returns false if no live daemon was registered.
func StopDaemon(registry domain.DaemonRegistry, pm domain.ProcessManager) (bool, error) {
	entry, err := registry.GetAll()
	if err != nil {
		return false, err
	}
	if entry == nil || entry.PID == 0 || !pm.IsRunning(entry.PID) {
		return false, registry.Clear()
	}
	if err := pm.Kill(entry.PID); err != nil {
		return false, fmt.Errorf("failed to stop daemon (pid %d): %w", entry.PID, err)
	}
	return true, registry.Clear()
}
