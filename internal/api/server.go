// Package api implements the loopback HTTP control surface consumed by the
// LoopDesk web UI.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loopdesk/loopdesk/internal/config"
	"github.com/loopdesk/loopdesk/internal/diag"
	"github.com/loopdesk/loopdesk/internal/lifecycle"
	"github.com/loopdesk/loopdesk/internal/logger"
	"github.com/loopdesk/loopdesk/internal/metrics"
)

// maxRequestBodySize caps request bodies; settings payloads are tiny.
const maxRequestBodySize = 1 * 1024 * 1024 // 1MB

// Server is the loopback HTTP server. It binds 127.0.0.1 only and rejects
// any request that somehow arrives from a non-loopback peer.
type Server struct {
	port     int
	orch     *lifecycle.Orchestrator
	store    *config.Store
	reporter *diag.Reporter
	redactor *logger.Redactor
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates the control surface server.
func NewServer(port int, orch *lifecycle.Orchestrator, store *config.Store, reporter *diag.Reporter, log *slog.Logger) *Server {
	return &Server{
		port:     port,
		orch:     orch,
		store:    store,
		reporter: reporter,
		redactor: logger.NewRedactor(),
		logger:   log.With("component", "api"),
	}
}

// Start begins serving. It returns once the listener is bound; serve errors
// after that are reported through errCh.
func (s *Server) Start(errCh chan<- error) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", s.wrapHandler(s.handleHealth))
	mux.HandleFunc("/api/v1/version", s.wrapHandler(s.handleVersion))
	mux.HandleFunc("/api/v1/status", s.wrapHandler(s.handleStatus))
	mux.HandleFunc("/api/v1/update/apply", s.wrapHandler(s.handleUpdateApply))
	mux.HandleFunc("/api/v1/settings/", s.wrapHandler(s.handleSettings))
	mux.HandleFunc("/api/v1/logs/export", s.wrapHandler(s.handleLogsExport))
	mux.Handle("/metrics", promhttp.Handler())

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind control surface to %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Control surface listening", "addr", addr)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Control surface shutting down")
	return s.server.Shutdown(ctx)
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// wrapHandler applies the shared middleware: loopback enforcement, body cap,
// request logging and panic recovery routed to the crash-safe reporter.
func (s *Server) wrapHandler(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				s.reporter.Reportf("panic in %s %s: %v", r.Method, r.URL.Path, p)
				writeError(rec, http.StatusInternalServerError, "internal error")
			}
			metrics.HTTPRequests.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.status)).Inc()
			s.logger.Debug("Request handled",
				"method", r.Method, "path", r.URL.Path, "status", rec.status)
		}()

		if !isLoopback(r.RemoteAddr) {
			writeError(rec, http.StatusForbidden, "loopback clients only")
			return
		}

		r.Body = http.MaxBytesReader(rec, r.Body, maxRequestBodySize)
		handler(rec, r)
	}
}

// isLoopback reports whether remoteAddr is a loopback peer. The listener
// binds 127.0.0.1, so this only matters for misconfigured proxies in front
// of it.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
