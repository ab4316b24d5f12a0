// Package metrics defines the Prometheus instrumentation for loopdesk.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Lifecycle metrics
	LifecycleState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "loopdesk_lifecycle_state",
			Help: "Current lifecycle state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	LockConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loopdesk_lock_conflicts_total",
			Help: "Instance lock conflicts observed at startup",
		},
		[]string{"resolution"}, // resolution: recovered, aborted
	)

	StaleLockRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loopdesk_stale_lock_recoveries_total",
			Help: "Stale lock records silently recovered",
		},
	)

	// Update metrics
	UpdateApplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loopdesk_update_applies_total",
			Help: "Update transactions by outcome",
		},
		[]string{"outcome"}, // outcome: committed, rolled_back
	)

	UpdateApplyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loopdesk_update_apply_duration_seconds",
			Help:    "Duration of the backup/copy/swap transaction",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
	)

	// Termination metrics
	TerminationEscalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loopdesk_termination_escalations_total",
			Help: "Prior-instance termination attempts by phase",
		},
		[]string{"phase"}, // phase: graceful, forced
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loopdesk_http_requests_total",
			Help: "Requests handled by the loopback control surface",
		},
		[]string{"path", "method", "status"},
	)
)

// lifecycleStates mirrors the orchestrator's state set so that exactly one
// series is hot at a time.
var lifecycleStates = []string{
	"starting", "lock_conflict", "locked", "serving",
	"update_requested", "shutting_down", "terminated",
}

// SetLifecycleState marks state as active and clears all others.
func SetLifecycleState(state string) {
	for _, s := range lifecycleStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		LifecycleState.WithLabelValues(s).Set(v)
	}
}
