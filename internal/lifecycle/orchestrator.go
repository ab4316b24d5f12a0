// Package lifecycle owns the process state machine: startup locking,
// update-triggered restarts and shutdown.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/loopdesk/loopdesk/internal/diag"
	"github.com/loopdesk/loopdesk/internal/instance"
	"github.com/loopdesk/loopdesk/internal/metrics"
	"github.com/loopdesk/loopdesk/internal/procutil"
	"github.com/loopdesk/loopdesk/internal/tracing"
	"github.com/loopdesk/loopdesk/internal/update"
)

// State is the orchestrator's lifecycle state.
type State string

const (
	StateStarting        State = "starting"
	StateLockConflict    State = "lock_conflict"
	StateLocked          State = "locked"
	StateServing         State = "serving"
	StateUpdateRequested State = "update_requested"
	StateShuttingDown    State = "shutting_down"
	StateTerminated      State = "terminated"
)

// ErrNotServing is returned when an update is requested outside the Serving
// state. This also serializes update cycles: a second request while one is
// in flight sees UpdateRequested, not Serving.
var ErrNotServing = errors.New("update rejected: application is not in the serving state")

// ErrStartupAborted is returned when the lock conflict policy ran out of
// options and startup must not proceed.
var ErrStartupAborted = errors.New("startup aborted: another live instance holds the lock")

// terminator is the slice of procutil.Terminator the orchestrator needs.
type terminator interface {
	RequestGracefulShutdown(ctx context.Context, pid int32) error
	ForceTerminate(pid int32) error
}

// applier is the slice of update.Applier the orchestrator needs.
type applier interface {
	Apply(artifactPath, targetPath string) error
}

// UpdateResult records the outcome of the most recent update transaction.
type UpdateResult struct {
	Artifact  string    `json:"artifact"`
	Committed bool      `json:"committed"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Status is the externally visible snapshot served by the control surface.
type Status struct {
	State           State         `json:"state"`
	Version         string        `json:"version"`
	PID             int           `json:"pid"`
	Executable      string        `json:"executable"`
	StartedAt       time.Time     `json:"started_at"`
	PendingArtifact string        `json:"pending_artifact,omitempty"`
	LastUpdate      *UpdateResult `json:"last_update,omitempty"`
}

// Options configures an Orchestrator. Zero fields get production defaults;
// tests inject fakes for the probe, terminator, applier and spawner.
type Options struct {
	DataDir    string
	Version    string
	Executable string // target of update transactions; default os.Executable()
	AutoApply  bool   // apply staged artifacts without waiting for the UI

	Probe      instance.LivenessProbe
	Terminator terminator
	Applier    applier
	Reporter   *diag.Reporter
	Logger     *slog.Logger

	// RequestStop asks the hosting command to stop serving; wired to the
	// serve context's cancel. Called after an update commits.
	RequestStop func()

	// Spawn launches the replacement process during the restart sequence.
	Spawn       func(exe string, args []string, logger *slog.Logger) error
	RestartArgs []string
}

// Orchestrator drives the lifecycle state machine. One instance exists per
// process, which is also what keeps update transactions single-flight.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger

	mu              sync.Mutex
	state           State
	lock            *instance.Lock
	startedAt       time.Time
	pendingArtifact string
	lastUpdate      *UpdateResult
	restartPending  bool
}

// New creates an Orchestrator in the Starting state.
func New(opts Options) (*Orchestrator, error) {
	if opts.DataDir == "" {
		return nil, errors.New("lifecycle: data directory is required")
	}
	if opts.Reporter == nil {
		return nil, errors.New("lifecycle: reporter is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("lifecycle: cannot determine executable: %w", err)
		}
		opts.Executable = exe
	}
	if opts.Probe == nil {
		opts.Probe = procutil.IsLiveInstance
	}
	if opts.Terminator == nil {
		opts.Terminator = procutil.NewTerminator(opts.Logger)
	}
	if opts.Applier == nil {
		opts.Applier = update.NewApplier(opts.Logger)
	}
	if opts.Spawn == nil {
		opts.Spawn = spawnDetached
	}
	if len(opts.RestartArgs) == 0 {
		opts.RestartArgs = []string{"serve"}
	}

	o := &Orchestrator{
		opts:   opts,
		logger: opts.Logger.With("component", "lifecycle"),
	}
	o.setState(StateStarting)
	return o, nil
}

// Startup acquires the instance lock, resolving conflicts per policy:
// request graceful shutdown of a live prior owner, escalate to a forced
// kill on timeout, retry acquisition once, then abort rather than loop.
func (o *Orchestrator) Startup(ctx context.Context) (err error) {
	defer o.trap("startup", &err)

	ctx, span := tracing.StartLifecycleSpan(ctx, "startup")
	defer func() {
		tracing.RecordError(span, err, "startup")
		span.End()
	}()

	lock, aerr := instance.TryAcquire(o.opts.DataDir, o.opts.Probe, o.logger)
	var conflict *instance.ConflictError
	if errors.As(aerr, &conflict) {
		o.setState(StateLockConflict)
		if err := o.resolveConflict(ctx, conflict); err != nil {
			metrics.LockConflicts.WithLabelValues("aborted").Inc()
			o.opts.Reporter.Report("lock conflict resolution", err)
			return err
		}
		metrics.LockConflicts.WithLabelValues("recovered").Inc()
		lock, aerr = instance.TryAcquire(o.opts.DataDir, o.opts.Probe, o.logger)
		if errors.As(aerr, &conflict) {
			o.opts.Reporter.Report("lock conflict after termination", aerr)
			return fmt.Errorf("%w (pid %d)", ErrStartupAborted, conflict.Record.PID)
		}
	}
	if aerr != nil {
		o.opts.Reporter.Report("lock acquisition", aerr)
		return aerr
	}

	o.mu.Lock()
	o.lock = lock
	o.mu.Unlock()
	o.setState(StateLocked)
	return nil
}

// resolveConflict terminates the prior owner, gracefully first.
func (o *Orchestrator) resolveConflict(ctx context.Context, conflict *instance.ConflictError) error {
	pid := int32(conflict.Record.PID)
	o.logger.Warn("Lock held by live instance, requesting shutdown",
		"owner_pid", pid, "owner_exe", conflict.Record.Executable)

	metrics.TerminationEscalations.WithLabelValues("graceful").Inc()
	err := o.opts.Terminator.RequestGracefulShutdown(ctx, pid)
	if err == nil {
		return nil
	}
	if !errors.Is(err, procutil.ErrGracefulTimeout) {
		return err
	}

	metrics.TerminationEscalations.WithLabelValues("forced").Inc()
	if err := o.opts.Terminator.ForceTerminate(pid); err != nil {
		return fmt.Errorf("forced termination of pid %d failed: %w", pid, err)
	}
	return nil
}

// MarkServing transitions Locked -> Serving once the HTTP server is up.
func (o *Orchestrator) MarkServing() {
	o.mu.Lock()
	o.startedAt = time.Now()
	o.mu.Unlock()
	o.setState(StateServing)
}

// HandleStagedArtifact is the watcher/checker callback for a fully staged
// artifact. With auto-apply the update starts immediately; otherwise the
// artifact is parked for the UI to confirm. An auto-apply delivery that
// arrives before Serving is parked too, never dropped: the next scan or a
// manual apply picks it up.
func (o *Orchestrator) HandleStagedArtifact(path string) {
	if o.opts.AutoApply {
		err := o.RequestUpdate(context.Background(), path)
		if err == nil {
			return
		}
		if !errors.Is(err, ErrNotServing) {
			o.logger.Warn("Auto-apply of staged artifact failed", "artifact", path, "error", err)
			return
		}
	}

	o.mu.Lock()
	o.pendingArtifact = path
	o.mu.Unlock()
	o.logger.Info("Staged artifact parked", "artifact", path, "auto_apply", o.opts.AutoApply)
}

// RequestUpdate runs one update transaction against the running executable.
// On commit the restart sequence begins and the current process will exit;
// on rollback the failure is reported and serving continues on the original
// binary.
func (o *Orchestrator) RequestUpdate(ctx context.Context, artifactPath string) (err error) {
	defer o.trap("update request", &err)

	o.mu.Lock()
	if o.state != StateServing {
		o.mu.Unlock()
		return fmt.Errorf("%w (current state: %s)", ErrNotServing, o.State())
	}
	o.state = StateUpdateRequested
	o.pendingArtifact = ""
	o.mu.Unlock()
	metrics.SetLifecycleState(string(StateUpdateRequested))

	ctx, span := tracing.StartUpdateSpan(ctx, "apply", artifactPath,
		attribute.String("update.target", o.opts.Executable))
	defer span.End()

	start := time.Now()
	applyErr := o.opts.Applier.Apply(artifactPath, o.opts.Executable)
	metrics.UpdateApplyDuration.Observe(time.Since(start).Seconds())

	result := &UpdateResult{Artifact: artifactPath, Committed: applyErr == nil, At: time.Now()}
	if applyErr != nil {
		result.Error = applyErr.Error()
	}
	o.mu.Lock()
	o.lastUpdate = result
	o.mu.Unlock()

	if applyErr != nil {
		metrics.UpdateApplies.WithLabelValues("rolled_back").Inc()
		tracing.RecordError(span, applyErr, "update apply")
		o.opts.Reporter.Report("update apply", applyErr)
		o.setState(StateServing)
		return applyErr
	}

	metrics.UpdateApplies.WithLabelValues("committed").Inc()
	o.mu.Lock()
	o.restartPending = true
	o.mu.Unlock()
	o.setState(StateShuttingDown)

	if o.opts.RequestStop != nil {
		o.opts.RequestStop()
	}
	return nil
}

// Shutdown releases the lock and, when an update committed, spawns the
// replacement process. Runs on every exit path, including signal-driven
// ones; a crash that skips it leaves only a stale, recoverable lock record.
func (o *Orchestrator) Shutdown() {
	defer o.trap("shutdown", nil)

	// Shutdown has no caller-supplied context; it runs on exit paths where
	// the serve context is already cancelled.
	_, span := tracing.StartLifecycleSpan(context.Background(), "shutdown")
	defer span.End()

	o.setState(StateShuttingDown)

	o.mu.Lock()
	lock := o.lock
	o.lock = nil
	restart := o.restartPending
	o.mu.Unlock()

	if lock != nil {
		if err := lock.Release(); err != nil {
			o.opts.Reporter.Report("lock release", err)
		}
	}

	if restart {
		o.logger.Info("Launching updated executable", "exe", o.opts.Executable, "args", o.opts.RestartArgs)
		if err := o.opts.Spawn(o.opts.Executable, o.opts.RestartArgs, o.logger); err != nil {
			// The update is already committed on disk; the user can
			// relaunch manually. Report, do not undo.
			o.opts.Reporter.Report("restart spawn", err)
		}
	}

	o.setState(StateTerminated)
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Status returns the snapshot served by the control surface.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		State:           o.state,
		Version:         o.opts.Version,
		PID:             os.Getpid(),
		Executable:      o.opts.Executable,
		StartedAt:       o.startedAt,
		PendingArtifact: o.pendingArtifact,
		LastUpdate:      o.lastUpdate,
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	metrics.SetLifecycleState(string(s))
	o.logger.Debug("Lifecycle state changed", "state", s)
}

// trap funnels a panic in a transition through the reporter before it can
// skip state bookkeeping or escape into the caller.
func (o *Orchestrator) trap(context string, err *error) {
	if r := recover(); r != nil {
		o.opts.Reporter.Reportf("panic during %s: %v", context, r)
		if err != nil {
			*err = fmt.Errorf("panic during %s: %v", context, r)
		}
	}
}
