package lifecycle

import (
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
)

// spawnDetached launches exe in its own session so the replacement survives
// this process's exit and owns no terminal we are about to lose.
func spawnDetached(exe string, args []string, logger *slog.Logger) error {
	cmd := exec.Command(exe, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", exe, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("failed to detach from pid %d: %w", pid, err)
	}

	logger.Info("Replacement process started", "pid", pid, "exe", exe)
	return nil
}
