package daemon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

// MonitorCommand builds the detached `monitor` command for executable.
// The child starts a new session so closing the terminal does not stop it.
func MonitorCommand(executable string, env []string) *exec.Cmd {
	cmd := exec.Command(executable, "monitor")
	cmd.Env = env

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	// No stdin/stdout/stderr; the monitor writes its own log file
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	return cmd
}

// StartMonitor spawns a detached monitor from the running executable.
func StartMonitor() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	cmd := MonitorCommand(executable, os.Environ())
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}
	// The child outlives us; release it so it is not left as a zombie
	// while this process is still running.
	return cmd.Process.Release()
}

// WaitForMonitor polls registry until a live monitor is registered or ctx
// is done.
func WaitForMonitor(ctx context.Context, registry domain.MonitorRegistry, interval time.Duration) (*domain.RegistryEntry, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if alive, err := registry.IsAlive(); err == nil && alive {
			entry, err := registry.Get()
			if err == nil && entry != nil {
				return entry, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("monitor did not come up: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
