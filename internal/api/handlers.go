package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/loopdesk/loopdesk/internal/lifecycle"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	// Deliberately trivial: liveness answers must not depend on anything
	// that can block, such as a termination wait in progress.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.orch.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    status.Version,
		"pid":        status.PID,
		"executable": status.Executable,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Status())
}

type updateApplyRequest struct {
	ArtifactPath string `json:"artifact_path"`
}

func (s *Server) handleUpdateApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req updateApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.ArtifactPath == "" {
		// Fall back to the artifact the watcher parked, if any.
		req.ArtifactPath = s.orch.Status().PendingArtifact
	}
	if req.ArtifactPath == "" {
		writeError(w, http.StatusBadRequest, "artifact_path is required")
		return
	}

	if err := s.orch.RequestUpdate(r.Context(), req.ArtifactPath); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, lifecycle.ErrNotServing) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}

	// Committed: this process is about to shut down and respawn.
	writeJSON(w, http.StatusOK, map[string]string{
		"result": "committed",
		"detail": "restarting into the updated executable",
	})
}

// handleSettings serves GET and PUT for /api/v1/settings/{section}. PUT is
// the web UI's persistence path: a partial, section-scoped merge.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	section := strings.TrimPrefix(r.URL.Path, "/api/v1/settings/")
	if section == "" || strings.Contains(section, "/") {
		writeError(w, http.StatusNotFound, "unknown settings section")
		return
	}

	switch r.Method {
	case http.MethodGet:
		values, err := s.store.Section(section)
		if err != nil {
			s.reporter.Report("settings read", err)
			// Corrupt documents degrade to defaults rather than a UI error.
			values = map[string]any{}
		}
		writeJSON(w, http.StatusOK, s.redactSection(values))

	case http.MethodPut:
		var values map[string]any
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if err := s.store.UpdateSection(section, values); err != nil {
			s.reporter.Report("settings write", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"result": "saved"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// redactSection masks credential values before they reach the browser.
func (s *Server) redactSection(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if str, ok := v.(string); ok {
			out[k] = s.redactor.RedactValue(k, str)
		} else {
			out[k] = v
		}
	}
	return out
}

// handleLogsExport streams the diagnostic logs as one plain-text download,
// oldest run first.
func (s *Server) handleLogsExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries, err := os.ReadDir(s.reporter.Dir())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusInternalServerError, "failed to read diagnostics")
		return
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".log") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=loopdesk-diagnostics-%s.log", time.Now().Format("20060102-150405")))

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.reporter.Dir(), name))
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "==== %s ====\n", name)
		_, _ = w.Write([]byte(s.redactor.Redact(string(data))))
	}
}
