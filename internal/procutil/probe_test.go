package procutil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"testing"
	"time"
)

func testTerminator() *Terminator {
	return NewTerminator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// startChild starts cmd and reaps it in the background so killed children do
// not linger as zombies in the process table.
func startChild(t *testing.T, name string, args ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start %s: %v", name, err)
	}
	go func() { _ = cmd.Wait() }()
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return cmd
}

func TestIsLiveInstance_OwnProcess(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	if !IsLiveInstance(int32(os.Getpid()), exe) {
		t.Error("IsLiveInstance() = false for our own process and executable")
	}
}

func TestIsLiveInstance_WrongIdentity(t *testing.T) {
	// The PID is live but belongs to the test binary, not to this name.
	if IsLiveInstance(int32(os.Getpid()), "/usr/local/bin/definitely-not-this-binary") {
		t.Error("IsLiveInstance() = true despite executable mismatch")
	}
}

func TestIsLiveInstance_DeadPID(t *testing.T) {
	exe, _ := os.Executable()
	// PID near the typical pid_max; extremely unlikely to exist.
	if IsLiveInstance(4194000, exe) {
		t.Error("IsLiveInstance() = true for a nonexistent PID")
	}
}

func TestIsLiveInstance_InvalidPID(t *testing.T) {
	exe, _ := os.Executable()
	for _, pid := range []int32{0, -1} {
		if IsLiveInstance(pid, exe) {
			t.Errorf("IsLiveInstance(%d) = true", pid)
		}
	}
}

func TestIsLiveInstance_NoExpectedIdentity(t *testing.T) {
	// Without an identity to compare, existence alone must not count.
	if IsLiveInstance(int32(os.Getpid()), "") {
		t.Error("IsLiveInstance() = true with empty expected executable")
	}
}

func TestRequestGracefulShutdown_CooperativeChild(t *testing.T) {
	cmd := startChild(t, "sleep", "30")

	term := testTerminator()
	if err := term.RequestGracefulShutdown(context.Background(), int32(cmd.Process.Pid)); err != nil {
		t.Fatalf("RequestGracefulShutdown() returned error: %v", err)
	}
	if exists := IsLiveInstance(int32(cmd.Process.Pid), "sleep"); exists {
		t.Error("process still live after graceful shutdown")
	}
}

func TestRequestGracefulShutdown_AlreadyGone(t *testing.T) {
	term := testTerminator()
	if err := term.RequestGracefulShutdown(context.Background(), 4194000); err != nil {
		t.Errorf("RequestGracefulShutdown() on dead PID returned error: %v", err)
	}
}

func TestRequestGracefulShutdown_TimeoutThenForce(t *testing.T) {
	// The child ignores SIGTERM, forcing the escalation path.
	cmd := startChild(t, "sh", "-c", `trap "" TERM; exec sleep 30`)

	// Give the shell a moment to install the trap before signalling.
	time.Sleep(100 * time.Millisecond)

	term := testTerminator()
	term.GraceTimeout = 300 * time.Millisecond

	err := term.RequestGracefulShutdown(context.Background(), int32(cmd.Process.Pid))
	if !errors.Is(err, ErrGracefulTimeout) {
		t.Fatalf("RequestGracefulShutdown() = %v, want ErrGracefulTimeout", err)
	}

	term.GraceTimeout = DefaultGraceTimeout
	if err := term.ForceTerminate(int32(cmd.Process.Pid)); err != nil {
		t.Fatalf("ForceTerminate() returned error: %v", err)
	}
}

func TestForceTerminate_AlreadyGone(t *testing.T) {
	term := testTerminator()
	if err := term.ForceTerminate(4194000); err != nil {
		t.Errorf("ForceTerminate() on dead PID returned error: %v", err)
	}
}

func TestRequestGracefulShutdown_ContextCancelled(t *testing.T) {
	cmd := startChild(t, "sh", "-c", `trap "" TERM; exec sleep 30`)
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	term := testTerminator()
	err := term.RequestGracefulShutdown(ctx, int32(cmd.Process.Pid))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RequestGracefulShutdown() = %v, want context.Canceled", err)
	}
}
