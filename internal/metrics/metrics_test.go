package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetLifecycleState_ExactlyOneActive(t *testing.T) {
	SetLifecycleState("serving")

	for _, s := range lifecycleStates {
		want := 0.0
		if s == "serving" {
			want = 1.0
		}
		if got := testutil.ToFloat64(LifecycleState.WithLabelValues(s)); got != want {
			t.Errorf("state %q gauge = %v, want %v", s, got, want)
		}
	}

	// Switching states moves the hot series.
	SetLifecycleState("shutting_down")
	if got := testutil.ToFloat64(LifecycleState.WithLabelValues("serving")); got != 0 {
		t.Errorf("serving gauge still %v after transition", got)
	}
	if got := testutil.ToFloat64(LifecycleState.WithLabelValues("shutting_down")); got != 1 {
		t.Errorf("shutting_down gauge = %v, want 1", got)
	}
}

func TestCounters_Increment(t *testing.T) {
	before := testutil.ToFloat64(UpdateApplies.WithLabelValues("committed"))
	UpdateApplies.WithLabelValues("committed").Inc()
	after := testutil.ToFloat64(UpdateApplies.WithLabelValues("committed"))
	if after != before+1 {
		t.Errorf("counter did not increment: before %v, after %v", before, after)
	}
}
