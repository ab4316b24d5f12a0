// Package instance enforces the single-instance guarantee through a lock
// file in the persistent data directory.
//
// The lock is cooperative rather than an OS-level exclusive handle: the
// stale-lock recovery path has to inspect, and possibly delete, a record
// whose presumed owner is unreachable. Exclusivity is therefore carried by
// the record's owner PID plus a liveness probe, never by file existence or
// age alone.
package instance

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/loopdesk/loopdesk/internal/appdir"
	"github.com/loopdesk/loopdesk/internal/metrics"
)

// LivenessProbe reports whether pid denotes a live process whose executable
// identity matches expectedExe. Satisfied by procutil.IsLiveInstance.
type LivenessProbe func(pid int32, expectedExe string) bool

// Record is the persisted owner metadata of the lock file.
type Record struct {
	PID        int
	Executable string
	AcquiredAt time.Time
}

// ConflictError is returned by TryAcquire when a live owner holds the lock.
// Policy (terminate, prompt, abort) is the caller's decision, not the lock's.
type ConflictError struct {
	Record Record
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("another instance is running (pid %d, executable %s)",
		e.Record.PID, e.Record.Executable)
}

// Lock is a held instance lock. Release must run on every exit path; a crash
// that skips it leaves a stale but recoverable record behind, which is why
// acquisition gates on liveness rather than existence.
type Lock struct {
	dir    string
	pid    int
	logger *slog.Logger
}

// TryAcquire attempts to take the instance lock in dir. On success the
// caller owns the returned Lock. If a live owner already holds it, the error
// is a *ConflictError carrying the owner's record. Stale and unreadable
// records are silently recovered.
func TryAcquire(dir string, probe LivenessProbe, logger *slog.Logger) (*Lock, error) {
	log := logger.With("component", "instance-lock")
	path := appdir.LockPath(dir)

	existing, err := Read(dir)
	switch {
	case err == nil:
		exe, _ := os.Executable()
		if probe(int32(existing.PID), ownerIdentity(existing, exe)) {
			return nil, &ConflictError{Record: *existing}
		}
		log.Info("Recovering stale lock", "owner_pid", existing.PID, "acquired_at", existing.AcquiredAt)
		metrics.StaleLockRecoveries.Inc()
	case errors.Is(err, os.ErrNotExist):
		// Nothing to recover.
	default:
		// A record that cannot be parsed came from a dead or broken
		// writer; it carries no exclusivity meaning.
		log.Warn("Replacing unreadable lock record", "error", err)
	}

	record := Record{PID: os.Getpid(), AcquiredAt: time.Now()}
	if exe, err := os.Executable(); err == nil {
		record.Executable = exe
	}

	// Write-new-then-rename: replacing a stale record and claiming the lock
	// is a single atomic step, so two processes that both saw the same
	// stale record cannot both end up believing they acquired it.
	if err := writeRecord(path, record); err != nil {
		return nil, fmt.Errorf("failed to write lock record: %w", err)
	}

	log.Info("Instance lock acquired", "pid", record.PID, "path", path)
	return &Lock{dir: dir, pid: record.PID, logger: log}, nil
}

// Release deletes the lock record, but only while it still names this
// process as owner. A later instance that superseded a stale record of ours
// must never lose its own lock to our cleanup.
func (l *Lock) Release() error {
	existing, err := Read(l.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil && existing.PID != l.pid {
		l.logger.Warn("Skipping release of lock owned by another process", "owner_pid", existing.PID)
		return nil
	}

	if err := os.Remove(appdir.LockPath(l.dir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove lock record: %w", err)
	}
	l.logger.Info("Instance lock released", "pid", l.pid)
	return nil
}

// Read parses the lock record in dir. Returns os.ErrNotExist (wrapped) when
// no record is present.
func Read(dir string) (*Record, error) {
	data, err := os.ReadFile(appdir.LockPath(dir))
	if err != nil {
		return nil, err
	}
	return parseRecord(string(data))
}

// ownerIdentity picks the executable identity to probe the owner with: the
// recorded path when present, otherwise our own executable (old records may
// predate the executable field).
func ownerIdentity(r *Record, selfExe string) string {
	if r.Executable != "" {
		return r.Executable
	}
	return selfExe
}

// The record is a line-oriented key=value file. The PID must round-trip
// exactly; everything else is advisory metadata.
func writeRecord(path string, r Record) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "pid=%d\n", r.PID)
	if r.Executable != "" {
		fmt.Fprintf(&sb, "exe=%s\n", r.Executable)
	}
	fmt.Fprintf(&sb, "acquired_at=%s\n", r.AcquiredAt.Format(time.RFC3339))

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func parseRecord(data string) (*Record, error) {
	r := &Record{}
	seenPID := false
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			pid, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid pid in lock record: %q", value)
			}
			r.PID = pid
			seenPID = true
		case "exe":
			r.Executable = value
		case "acquired_at":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				r.AcquiredAt = ts
			}
		}
	}
	if !seenPID {
		return nil, errors.New("lock record has no pid")
	}
	return r, nil
}
