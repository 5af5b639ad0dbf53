package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecordsEventsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, "throttlekeep", "tracker")

	c.IncEvent("immediate")
	c.IncEvent("immediate")
	c.IncEvent("deferred")

	if got := testutil.ToFloat64(c.eventsTotal.WithLabelValues("immediate")); got != 2 {
		t.Errorf("immediate events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.eventsTotal.WithLabelValues("deferred")); got != 1 {
		t.Errorf("deferred events = %v, want 1", got)
	}
}

func TestCollectorTracksDeferredSetSize(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, "throttlekeep", "tracker")

	c.SetDeferredSetSize(3)
	if got := testutil.ToFloat64(c.deferredSetSize); got != 3 {
		t.Errorf("deferred set size = %v, want 3", got)
	}

	c.SetDeferredSetSize(0)
	if got := testutil.ToFloat64(c.deferredSetSize); got != 0 {
		t.Errorf("deferred set size = %v, want 0", got)
	}
}

func TestCollectorNilReceiverIsSafe(t *testing.T) {
	var c *Collector
	c.IncEvent("immediate")
	c.SetDeferredSetSize(5)
	c.IncProcessed()
	c.IncProcessFailure()
	c.IncRetry()
}

func TestCollectorRetryAndFailureCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, "throttlekeep", "tracker")

	c.IncRetry()
	c.IncRetry()
	c.IncProcessFailure()
	c.IncProcessed()

	if got := testutil.ToFloat64(c.retryTotal); got != 2 {
		t.Errorf("retry total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.processFailuresTotal); got != 1 {
		t.Errorf("process failures total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.processedTotal); got != 1 {
		t.Errorf("processed total = %v, want 1", got)
	}
}
