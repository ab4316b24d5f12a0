// Package procutil inspects and terminates external LoopDesk processes.
//
// PIDs get recycled, on a freshly booted machine quickly. A PID alone
// therefore never proves that a prior instance is still alive; liveness is
// only true when the process exists AND its executable identity matches ours.
package procutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ErrGracefulTimeout is returned when a process outlives the bounded wait
// after a cooperative termination request.
var ErrGracefulTimeout = errors.New("process did not exit within the graceful shutdown window")

// IsLiveInstance reports whether pid denotes a live process whose executable
// matches expectedExe (full path or base name). Existence without an identity
// match is treated as not live: the PID has been recycled by an unrelated
// process and carries no exclusivity meaning.
func IsLiveInstance(pid int32, expectedExe string) bool {
	if pid <= 0 {
		return false
	}
	p, err := process.NewProcess(pid)
	if err != nil {
		return false
	}
	running, err := p.IsRunning()
	if err != nil || !running {
		return false
	}
	if expectedExe == "" {
		// No identity to compare against; refuse the false positive.
		return false
	}

	if exe, err := p.Exe(); err == nil && exe != "" {
		if exe == expectedExe || filepath.Base(exe) == filepath.Base(expectedExe) {
			return true
		}
	}
	// Some platforms deny Exe() for other users' processes; fall back to
	// the process name.
	if name, err := p.Name(); err == nil && name != "" {
		return strings.EqualFold(name, filepath.Base(expectedExe))
	}
	return false
}

// Terminator escalates from cooperative to forced termination. The grace
// timeout and poll interval are configurable constants, not hidden
// assumptions.
type Terminator struct {
	GraceTimeout time.Duration
	PollInterval time.Duration
	logger       *slog.Logger
}

// DefaultGraceTimeout bounds the wait after a cooperative termination request.
const DefaultGraceTimeout = 5 * time.Second

// DefaultPollInterval is how often the process table is re-checked while waiting.
const DefaultPollInterval = 50 * time.Millisecond

// NewTerminator creates a Terminator with the default timing constants.
func NewTerminator(logger *slog.Logger) *Terminator {
	return &Terminator{
		GraceTimeout: DefaultGraceTimeout,
		PollInterval: DefaultPollInterval,
		logger:       logger.With("component", "terminator"),
	}
}

// RequestGracefulShutdown sends a cooperative termination signal to pid and
// waits up to GraceTimeout for it to leave the process table. Returns
// ErrGracefulTimeout if it is still there when the window closes.
func (t *Terminator) RequestGracefulShutdown(ctx context.Context, pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		// Already gone.
		return nil
	}

	t.logger.Info("Requesting graceful shutdown", "pid", pid, "timeout", t.GraceTimeout)
	if err := p.Terminate(); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	deadline := time.Now().Add(t.GraceTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.PollInterval):
		}
		if gone(pid) {
			t.logger.Info("Process exited gracefully", "pid", pid)
			return nil
		}
	}
	return fmt.Errorf("pid %d: %w", pid, ErrGracefulTimeout)
}

// ForceTerminate kills pid unconditionally. Used only after a graceful
// attempt timed out or was skipped by policy; there is no retry loop, a
// persistent failure is the caller's problem to surface.
func (t *Terminator) ForceTerminate(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil
	}

	t.logger.Warn("Force terminating process", "pid", pid)
	if err := p.Kill(); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}

	// Kill is asynchronous; give the process table a moment to settle.
	deadline := time.Now().Add(t.GraceTimeout)
	for time.Now().Before(deadline) {
		if gone(pid) {
			return nil
		}
		time.Sleep(t.PollInterval)
	}
	return fmt.Errorf("process %d still present after kill", pid)
}

func gone(pid int32) bool {
	exists, err := process.PidExists(pid)
	return err == nil && !exists
}
