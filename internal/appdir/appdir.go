// Package appdir resolves the persistent data directory for LoopDesk.
//
// The directory holds the instance lock, the configuration document and the
// diagnostic logs. It is deliberately independent of the location of the
// running executable: the binary moves across updates and downloads, the data
// directory must not.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// appName is the per-user directory name under the OS config location.
	appName = "loopdesk"

	// devDirName is the data directory used for `go run` style development
	// runs, created relative to the working tree.
	devDirName = ".loopdesk"

	// EnvDataDir overrides the resolved directory entirely. Used by tests
	// and by users who keep their profile on a different volume.
	EnvDataDir = "LOOPDESK_DATA_DIR"

	// LockFileName is the instance lock file inside the data directory.
	LockFileName = "loopdesk.lock"

	// ConfigFileName is the configuration document inside the data directory.
	ConfigFileName = "config.yaml"

	// DiagnosticsDirName is the subdirectory for crash-safe diagnostic logs.
	DiagnosticsDirName = "diagnostics"
)

// Resolve returns the persistent data directory, creating it if absent.
// The result is stable for a given installation regardless of which copy of
// the binary is executing: packaged runs use the per-user config location,
// development runs use a dot-directory relative to the working tree.
func Resolve() (string, error) {
	dir, err := locate()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return dir, nil
}

// locate determines the directory without creating it.
func locate() (string, error) {
	if override := os.Getenv(EnvDataDir); override != "" {
		return override, nil
	}

	if isDevRun() {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to determine working directory: %w", err)
		}
		return filepath.Join(wd, devDirName), nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine user config directory: %w", err)
	}
	return filepath.Join(base, appName), nil
}

// isDevRun reports whether the current process was started via `go run`,
// in which case the executable lives in the build cache under the temp
// directory and is not a stable identity to anchor anything on.
func isDevRun() bool {
	exe, err := os.Executable()
	if err != nil {
		return false
	}
	return strings.HasPrefix(exe, os.TempDir()) || strings.Contains(exe, string(filepath.Separator)+"go-build")
}

// LockPath returns the instance lock file path inside dir.
func LockPath(dir string) string {
	return filepath.Join(dir, LockFileName)
}

// ConfigPath returns the configuration document path inside dir.
func ConfigPath(dir string) string {
	return filepath.Join(dir, ConfigFileName)
}

// DiagnosticsPath returns the diagnostic log directory inside dir.
func DiagnosticsPath(dir string) string {
	return filepath.Join(dir, DiagnosticsDirName)
}
