package update

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testApplier() *Applier {
	return NewApplier(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestApply_Commit(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "loopdesk")
	artifact := filepath.Join(dir, "staged", "loopdesk-new")
	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, target, "old binary")
	writeFile(t, artifact, "new binary")

	if err := testApplier().Apply(artifact, target); err != nil {
		t.Fatalf("Apply() returned error: %v", err)
	}

	if got := readFile(t, target); got != "new binary" {
		t.Errorf("target content = %q, want %q", got, "new binary")
	}
	if exists(artifact) {
		t.Error("staged artifact not removed after commit")
	}
	if exists(target + BackupSuffix) {
		t.Error("backup not removed after commit")
	}

	info, err := os.Stat(target)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Errorf("target is not executable: %v", info.Mode())
	}
}

func TestApply_CopyFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "loopdesk")
	artifact := filepath.Join(dir, "loopdesk-new")
	writeFile(t, target, "old binary")
	writeFile(t, artifact, "new binary")

	a := testApplier()
	a.copyFile = func(dst, src string) error {
		return errors.New("disk full")
	}

	err := a.Apply(artifact, target)
	if !errors.Is(err, ErrRolledBack) {
		t.Fatalf("Apply() = %v, want ErrRolledBack", err)
	}

	if got := readFile(t, target); got != "old binary" {
		t.Errorf("rollback did not restore original, target = %q", got)
	}
	if exists(target + BackupSuffix) {
		t.Error("backup left behind after successful rollback")
	}
}

func TestApply_PartialCopyRollsBack(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "loopdesk")
	artifact := filepath.Join(dir, "loopdesk-new")
	writeFile(t, target, "old binary")
	writeFile(t, artifact, "new binary")

	a := testApplier()
	a.copyFile = func(dst, src string) error {
		// Simulate a write that died halfway through.
		if err := os.WriteFile(dst, []byte("new bi"), 0o755); err != nil {
			return err
		}
		return errors.New("short write")
	}

	err := a.Apply(artifact, target)
	if !errors.Is(err, ErrRolledBack) {
		t.Fatalf("Apply() = %v, want ErrRolledBack", err)
	}
	if got := readFile(t, target); got != "old binary" {
		t.Errorf("rollback did not restore original, target = %q", got)
	}
}

func TestApply_MissingTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "loopdesk")
	artifact := filepath.Join(dir, "loopdesk-new")
	writeFile(t, artifact, "new binary")

	err := testApplier().Apply(artifact, target)
	if !errors.Is(err, ErrRolledBack) {
		t.Fatalf("Apply() = %v, want ErrRolledBack", err)
	}
	// Step 2 failed, so nothing was touched: artifact must still be staged.
	if !exists(artifact) {
		t.Error("staged artifact consumed despite failed backup step")
	}
}

func TestApply_MissingArtifactRollsBack(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "loopdesk")
	artifact := filepath.Join(dir, "does-not-exist")
	writeFile(t, target, "old binary")

	err := testApplier().Apply(artifact, target)
	if !errors.Is(err, ErrRolledBack) {
		t.Fatalf("Apply() = %v, want ErrRolledBack", err)
	}
	if got := readFile(t, target); got != "old binary" {
		t.Errorf("rollback did not restore original, target = %q", got)
	}
}

func TestApply_ClearsLeftoverBackup(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "loopdesk")
	artifact := filepath.Join(dir, "loopdesk-new")
	writeFile(t, target, "old binary")
	writeFile(t, artifact, "new binary")
	writeFile(t, target+BackupSuffix, "ancient binary from a previous cycle")

	if err := testApplier().Apply(artifact, target); err != nil {
		t.Fatalf("Apply() returned error: %v", err)
	}
	if got := readFile(t, target); got != "new binary" {
		t.Errorf("target content = %q, want %q", got, "new binary")
	}
	if exists(target + BackupSuffix) {
		t.Error("leftover backup survived the cycle")
	}
}

// A runnable executable must exist at the target path or the backup path at
// every injected point of failure.
func TestApply_NeverNeitherInvariant(t *testing.T) {
	tests := []struct {
		name     string
		copyFunc func(dst, src string) error
	}{
		{
			name:     "copy fails cleanly",
			copyFunc: func(dst, src string) error { return errors.New("injected") },
		},
		{
			name: "copy leaves partial file",
			copyFunc: func(dst, src string) error {
				_ = os.WriteFile(dst, []byte("partial"), 0o755)
				return errors.New("injected")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			target := filepath.Join(dir, "loopdesk")
			artifact := filepath.Join(dir, "loopdesk-new")
			writeFile(t, target, "old binary")
			writeFile(t, artifact, "new binary")

			a := testApplier()
			a.copyFile = tt.copyFunc
			_ = a.Apply(artifact, target)

			if readFileOr(target) != "old binary" && readFileOr(target+BackupSuffix) != "old binary" {
				t.Error("neither target nor backup holds the original executable")
			}
		})
	}
}

func readFileOr(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

func TestApply_Rerun(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "loopdesk")
	writeFile(t, target, "v1")

	// First cycle commits v2.
	artifact := filepath.Join(dir, "loopdesk-v2")
	writeFile(t, artifact, "v2")
	if err := testApplier().Apply(artifact, target); err != nil {
		t.Fatalf("first Apply() returned error: %v", err)
	}

	// Second cycle with a broken copy step rolls back to v2.
	artifact = filepath.Join(dir, "loopdesk-v3")
	writeFile(t, artifact, "v3")
	a := testApplier()
	a.copyFile = func(dst, src string) error { return errors.New("injected") }
	if err := a.Apply(artifact, target); !errors.Is(err, ErrRolledBack) {
		t.Fatalf("second Apply() = %v, want ErrRolledBack", err)
	}

	if got := readFile(t, target); got != "v2" {
		t.Errorf("target content = %q, want %q", got, "v2")
	}
}
