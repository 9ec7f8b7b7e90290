// Package infra implements infrastructure concerns (store, alarms,
// interception, notification, HTTP clients, process registry).
package infra

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

// commLen is the length Linux truncates process names to.
const commLen = 15

// Processes answers liveness questions about monitor PIDs.
//
// A registered PID can be reused by an unrelated program after the monitor
// crashes, so a live PID only counts when its process name matches ours.
type Processes struct {
	name string
}

// NewProcessManager creates a process manager that recognises processes
// running the current executable.
func NewProcessManager() *Processes {
	exe, err := os.Executable()
	if err != nil {
		return &Processes{}
	}
	return &Processes{name: filepath.Base(exe)}
}

// IsRunning reports whether pid is a live, non-zombie process running
// this program.
func (p *Processes) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}

	// Status and Name are not available everywhere; existence is enough then.
	if status, err := proc.Status(); err == nil {
		for _, s := range status {
			if s == process.Zombie {
				return false
			}
		}
	}
	if p.name == "" {
		return true
	}
	name, err := proc.Name()
	if err != nil || name == "" {
		return true
	}
	return sameProgram(name, p.name)
}

// GetCurrentPID returns the current process PID.
func (p *Processes) GetCurrentPID() int {
	return os.Getpid()
}

// sameProgram compares a reported process name with an executable name,
// allowing for kernel truncation.
func sameProgram(reported, executable string) bool {
	if reported == executable {
		return true
	}
	return len(reported) == commLen && strings.HasPrefix(executable, reported)
}

var _ domain.ProcessManager = (*Processes)(nil)
