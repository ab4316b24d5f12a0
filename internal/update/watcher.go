package update

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StagedHandler is called with the path of a fully staged update artifact.
type StagedHandler func(artifactPath string)

// Watcher watches the staging directory for arriving update artifacts.
// Downloads are written in place, so events are debounced until the file
// stops changing before the handler sees it.
type Watcher struct {
	stagingDir string
	handler    StagedHandler
	logger     *slog.Logger
	watcher    *fsnotify.Watcher
	debounce   time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// WatcherConfig holds watcher configuration.
type WatcherConfig struct {
	StagingDir string
	Handler    StagedHandler
	Logger     *slog.Logger
	Debounce   time.Duration // settle period before an artifact counts as staged
}

// NewWatcher creates a staging directory watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.StagingDir == "" {
		return nil, fmt.Errorf("staging directory is required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("staged handler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 2 * time.Second
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		stagingDir: cfg.StagingDir,
		handler:    cfg.Handler,
		logger:     cfg.Logger.With("component", "staging-watcher"),
		watcher:    fsWatcher,
		debounce:   cfg.Debounce,
		lastSeen:   make(map[string]time.Time),
	}, nil
}

// Start begins watching the staging directory until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.stagingDir); err != nil {
		return fmt.Errorf("failed to watch staging directory: %w", err)
	}

	w.logger.Info("Staging watcher started", "dir", w.stagingDir, "debounce", w.debounce)
	go w.watchLoop(ctx)
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Staging watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.touch(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Staging watcher error", "error", err)

		case now := <-ticker.C:
			w.flushSettled(now)
		}
	}
}

// touch records write activity for an artifact candidate.
func (w *Watcher) touch(path string) {
	if !IsArtifactCandidate(path) {
		return
	}
	w.mu.Lock()
	w.lastSeen[path] = time.Now()
	w.mu.Unlock()
}

// flushSettled hands over artifacts that have had no writes for a full
// debounce period.
func (w *Watcher) flushSettled(now time.Time) {
	w.mu.Lock()
	var ready []string
	for path, seen := range w.lastSeen {
		if now.Sub(seen) >= w.debounce {
			ready = append(ready, path)
			delete(w.lastSeen, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.logger.Info("Update artifact staged", "path", path)
		w.handler(path)
	}
}

// IsArtifactCandidate filters out partial downloads and hidden files.
func IsArtifactCandidate(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch filepath.Ext(base) {
	case ".partial", ".tmp", ".part":
		return false
	}
	return !strings.HasSuffix(base, BackupSuffix)
}
