// Package diag provides crash-safe diagnostic reporting.
//
// Reporter is the terminal failure-handling path for every other component:
// it must never panic, never return an error and never block indefinitely.
// A packaged desktop binary has no usable console streams, so diagnostics go
// to a per-run log file under the persistent data directory instead.
package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/loopdesk/loopdesk/internal/appdir"
)

// Reporter records error context and tracebacks to a per-run diagnostic log.
// A Reporter whose log destination could not be opened is still valid; its
// Report calls become no-ops rather than failures.
type Reporter struct {
	mu   sync.Mutex
	dir  string
	file *os.File
}

// NewReporter creates a Reporter writing under the diagnostics subdirectory
// of the persistent data directory. Setup failures are swallowed: reporting
// must stay available as a best-effort sink even when the disk is not.
func NewReporter(dataDir string) *Reporter {
	r := &Reporter{dir: appdir.DiagnosticsPath(dataDir)}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return r
	}
	name := fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(r.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return r
	}
	r.file = f
	return r
}

// Report records err with surrounding context. It never panics and never
// propagates failures of its own: if the log write fails the failure is
// swallowed and the call returns normally. This is the one place in the
// codebase exempt from the propagate-errors policy.
func (r *Reporter) Report(context string, err error) {
	defer func() {
		// Last line of defense: a fault inside the reporter must die here.
		_ = recover()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return
	}

	msg := "<nil>"
	if err != nil {
		msg = err.Error()
	}
	entry := fmt.Sprintf("[%s] %s: %s\n%s\n",
		time.Now().Format(time.RFC3339), context, msg, debug.Stack())

	if _, werr := r.file.WriteString(entry); werr != nil {
		return
	}
	_ = r.file.Sync()
}

// Reportf is Report with a formatted context message and no underlying error.
func (r *Reporter) Reportf(format string, args ...any) {
	r.Report(fmt.Sprintf(format, args...), nil)
}

// Dir returns the diagnostics directory, for the log export endpoint.
func (r *Reporter) Dir() string {
	return r.dir
}

// Close releases the log file. Best-effort, safe on a failed Reporter.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}
}
