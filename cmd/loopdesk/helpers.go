package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/loopdesk/loopdesk/internal/appdir"
	"github.com/loopdesk/loopdesk/internal/config"
)

// ResolveAPIURL determines the control surface URL for client commands.
// Priority: --api flag > configured port > default port.
func ResolveAPIURL(flagURL string) string {
	if flagURL != "" {
		return flagURL
	}

	port := config.DefaultPort
	if dataDir, err := appdir.Resolve(); err == nil {
		quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		store := config.NewStore(dataDir, quiet)
		if doc, err := store.Load(); err == nil {
			port = store.Server(doc).Port
		}
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}
