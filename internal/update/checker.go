package update

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
)

// Checker periodically scans the staging directory for artifacts. It is the
// polling fallback behind the fsnotify watcher: inotify delivery is not
// guaranteed on every filesystem a user may point the staging directory at.
type Checker struct {
	stagingDir string
	handler    StagedHandler
	logger     *slog.Logger
	cron       *cron.Cron
}

// DefaultCheckSchedule scans every ten minutes.
const DefaultCheckSchedule = "*/10 * * * *"

// NewChecker creates a Checker with the given cron schedule expression
// (standard five-field format).
func NewChecker(stagingDir, schedule string, handler StagedHandler, logger *slog.Logger) (*Checker, error) {
	if schedule == "" {
		schedule = DefaultCheckSchedule
	}

	c := &Checker{
		stagingDir: stagingDir,
		handler:    handler,
		logger:     logger.With("component", "update-checker"),
		cron:       cron.New(),
	}

	if _, err := c.cron.AddFunc(schedule, c.Scan); err != nil {
		return nil, fmt.Errorf("invalid update check schedule %q: %w", schedule, err)
	}
	return c, nil
}

// Start runs the schedule until ctx is cancelled.
func (c *Checker) Start(ctx context.Context) {
	c.logger.Info("Update checker started", "dir", c.stagingDir)
	c.cron.Start()
	go func() {
		<-ctx.Done()
		<-c.cron.Stop().Done()
		c.logger.Debug("Update checker stopped")
	}()
}

// Scan inspects the staging directory once and hands every candidate
// artifact to the handler. Also called directly at startup to pick up
// artifacts staged while the application was not running.
func (c *Checker) Scan() {
	entries, err := os.ReadDir(c.stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("Failed to scan staging directory", "error", err)
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(c.stagingDir, entry.Name())
		if !IsArtifactCandidate(path) {
			continue
		}
		c.logger.Info("Found staged artifact", "path", path)
		c.handler(path)
	}
}
