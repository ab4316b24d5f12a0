// Package update applies staged executable artifacts to the running binary.
//
// The applier works purely on the two executable paths. It never touches the
// persistent data directory: replacing the binary cannot, by construction,
// corrupt or lose user configuration.
package update

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// BackupSuffix marks the previous executable next to the target. The backup
// shares the target's directory so the rename in step two stays on one
// volume and therefore atomic.
const BackupSuffix = ".backup"

// ErrRolledBack wraps the underlying failure when an apply was undone and
// the original executable restored.
var ErrRolledBack = errors.New("update rolled back")

// Applier swaps a staged artifact in for the running executable with a
// backup/rollback guarantee: at every observable point either the target or
// its backup is a runnable executable.
type Applier struct {
	logger *slog.Logger

	// copyFile is swapped out by tests to inject failures mid-transaction.
	copyFile func(dst, src string) error
}

// NewApplier creates an Applier.
func NewApplier(logger *slog.Logger) *Applier {
	return &Applier{
		logger:   logger.With("component", "update-applier"),
		copyFile: copyExecutable,
	}
}

// Apply replaces targetPath with the artifact at artifactPath.
//
// Order matters for the never-neither invariant:
//  1. remove a leftover backup from a previous cycle
//  2. rename target -> target+BackupSuffix (atomic, same directory)
//  3. copy artifact -> target
//  4. on copy failure, rename the backup back and report the rollback
//  5. on success, remove the staged artifact; backup removal is best-effort
//
// A failure in step 2 changes nothing and leaves the original untouched.
// Errors from steps 2-4 satisfy errors.Is(err, ErrRolledBack).
func (a *Applier) Apply(artifactPath, targetPath string) error {
	backupPath := targetPath + BackupSuffix

	if err := os.Remove(backupPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear leftover backup %s: %w", backupPath, err)
	}

	a.logger.Info("Applying update", "artifact", artifactPath, "target", targetPath)

	if err := os.Rename(targetPath, backupPath); err != nil {
		// Nothing has changed yet; the original executable is intact.
		return fmt.Errorf("%w: failed to back up executable: %w", ErrRolledBack, err)
	}

	if err := a.copyFile(targetPath, artifactPath); err != nil {
		if rbErr := os.Rename(backupPath, targetPath); rbErr != nil {
			// The backup still exists at a runnable path; surface both.
			return fmt.Errorf("%w: copy failed: %w (restore also failed: %v, backup retained at %s)",
				ErrRolledBack, err, rbErr, backupPath)
		}
		a.logger.Warn("Update rolled back", "reason", err)
		return fmt.Errorf("%w: copy failed: %w", ErrRolledBack, err)
	}

	if err := os.Remove(artifactPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		a.logger.Warn("Failed to remove staged artifact", "path", artifactPath, "error", err)
	}
	// A leftover backup is harmless; the next cycle's step 1 collects it.
	if err := os.Remove(backupPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		a.logger.Warn("Failed to remove backup", "path", backupPath, "error", err)
	}

	a.logger.Info("Update committed", "target", targetPath)
	return nil
}

// copyExecutable copies src to dst with executable permissions and flushes
// the data to disk before returning.
func copyExecutable(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
