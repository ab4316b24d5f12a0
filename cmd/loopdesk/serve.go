package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loopdesk/loopdesk/internal/api"
	"github.com/loopdesk/loopdesk/internal/appdir"
	"github.com/loopdesk/loopdesk/internal/config"
	"github.com/loopdesk/loopdesk/internal/diag"
	"github.com/loopdesk/loopdesk/internal/lifecycle"
	"github.com/loopdesk/loopdesk/internal/logger"
	"github.com/loopdesk/loopdesk/internal/tracing"
	"github.com/loopdesk/loopdesk/internal/update"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the LoopDesk instance",
	Long: `Start LoopDesk: acquire the single-instance lock, serve the loopback
web UI, watch for staged updates and restart into them when applied.

This is the default mode when no subcommand is specified.`,
	Run: runServe,
}

var (
	servePort     int
	serveAuto     bool
	serveNoUpdate bool
)

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Loopback HTTP port (default: configured or 8787)")
	serveCmd.Flags().BoolVar(&serveAuto, "auto-apply", false, "Apply staged updates without waiting for confirmation")
	serveCmd.Flags().BoolVar(&serveNoUpdate, "no-update-watch", false, "Disable staging directory watching and scheduled scans")
}

func runServe(cmd *cobra.Command, args []string) {
	dataDir, err := appdir.Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve data directory: %v\n", err)
		os.Exit(1)
	}

	// The reporter comes first: every later failure must have somewhere to go
	// even when the UI never came up.
	reporter := diag.NewReporter(dataDir)
	defer reporter.Close()

	bootLog := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := config.NewStore(dataDir, bootLog)
	doc, err := store.Load()
	if errors.Is(err, config.ErrCorrupt) {
		reporter.Report("configuration load", err)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggingCfg := store.Logging(doc)
	log := logger.New(loggingCfg.Level, loggingCfg.Format)
	slog.SetDefault(log)

	serverCfg := store.Server(doc)
	if servePort > 0 {
		serverCfg.Port = servePort
	}
	updateCfg := store.Update(doc)
	if serveAuto {
		updateCfg.AutoApply = true
	}

	slog.Info("LoopDesk starting",
		"version", version,
		"pid", os.Getpid(),
		"data_dir", dataDir,
		"port", serverCfg.Port,
	)

	// Serve context: cancelled by signals and by a committed update.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingCfg := store.Tracing(doc)
	tracingProvider, err := tracing.NewProvider(ctx, tracing.TracerConfig{
		Enabled:     tracingCfg.Enabled,
		Exporter:    tracingCfg.Exporter,
		Endpoint:    tracingCfg.Endpoint,
		SampleRate:  tracingCfg.SampleRate,
		ServiceName: "loopdesk",
		Version:     version,
		UseTLS:      tracingCfg.UseTLS,
	}, log)
	if err != nil {
		slog.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Tracing shutdown error", "error", err)
		}
	}()

	orch, err := lifecycle.New(lifecycle.Options{
		DataDir:     dataDir,
		Version:     version,
		AutoApply:   updateCfg.AutoApply,
		Reporter:    reporter,
		Logger:      log,
		RequestStop: stop,
	})
	if err != nil {
		slog.Error("Failed to create lifecycle orchestrator", "error", err)
		os.Exit(1)
	}

	if err := orch.Startup(ctx); err != nil {
		slog.Error("Startup failed", "error", err)
		if errors.Is(err, lifecycle.ErrStartupAborted) {
			fmt.Fprintln(os.Stderr, "Another LoopDesk instance is running and would not yield.")
		}
		os.Exit(1)
	}
	// From here on the lock is held; every exit path must release it.
	defer orch.Shutdown()

	apiServer := api.NewServer(serverCfg.Port, orch, store, reporter, log)
	serveErrCh := make(chan error, 1)
	if err := apiServer.Start(serveErrCh); err != nil {
		slog.Error("Failed to start control surface", "error", err)
		return
	}

	orch.MarkServing()
	slog.Info("LoopDesk serving", "url", fmt.Sprintf("http://127.0.0.1:%d", serverCfg.Port))

	// After MarkServing so that the startup catch-up scan can auto-apply
	// instead of finding the orchestrator still in Locked.
	if !serveNoUpdate {
		startUpdatePipeline(ctx, updateCfg, orch, log)
	}

	select {
	case <-ctx.Done():
		slog.Info("Shutdown requested")
	case err := <-serveErrCh:
		slog.Error("Control surface failed", "error", err)
		reporter.Report("control surface", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Control surface shutdown error", "error", err)
	}

	// The deferred orch.Shutdown releases the lock and, if an update
	// committed, spawns the replacement process.
	slog.Info("LoopDesk shutdown complete")
}

// startUpdatePipeline wires the staging watcher, the scheduled scan fallback
// and the startup catch-up scan to the orchestrator.
func startUpdatePipeline(ctx context.Context, cfg config.UpdateSettings, orch *lifecycle.Orchestrator, log *slog.Logger) {
	if err := os.MkdirAll(cfg.StagingDir, 0o755); err != nil {
		slog.Warn("Cannot create staging directory, update watching disabled",
			"dir", cfg.StagingDir, "error", err)
		return
	}

	watcher, err := update.NewWatcher(update.WatcherConfig{
		StagingDir: cfg.StagingDir,
		Handler:    orch.HandleStagedArtifact,
		Logger:     log,
	})
	if err != nil {
		slog.Warn("Staging watcher unavailable, relying on scheduled scans", "error", err)
	} else if err := watcher.Start(ctx); err != nil {
		slog.Warn("Staging watcher failed to start", "error", err)
	}

	checker, err := update.NewChecker(cfg.StagingDir, cfg.CheckSchedule, orch.HandleStagedArtifact, log)
	if err != nil {
		slog.Warn("Invalid update check schedule, scheduled scans disabled", "error", err)
		return
	}
	checker.Start(ctx)

	// Pick up artifacts staged while the instance was not running.
	checker.Scan()
}
