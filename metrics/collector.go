// Package metrics exposes the tracker engine's counters and gauges as
// Prometheus collectors. A Collector is a thin, nil-receiver-safe wrapper
// over collectors registered against a caller-supplied
// prometheus.Registerer, so an application can run more than one tracker (e.g. distinct categories) each with its own metric
// namespace without label collisions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector wires prometheus collectors for a single tracker instance.
// All methods are nil-receiver safe, matching the pattern of a tracker
// that may optionally run without metrics wired in.
type Collector struct {
	eventsTotal         *prometheus.CounterVec
	deferredSetSize     prometheus.Gauge
	processedTotal      prometheus.Counter
	processFailuresTotal prometheus.Counter
	retryTotal          prometheus.Counter
}

// NewCollector creates and registers a Collector's metrics against reg.
// namespace/subsystem follow the usual Prometheus naming convention and
// let two trackers in the same process avoid collecting into the same
// series (e.g. distinct "tracker" subsystem names per category).
func NewCollector(reg prometheus.Registerer, namespace, subsystem string) *Collector {
	c := &Collector{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_total",
			Help:      "Tracked events by outcome.",
		}, []string{"outcome"}),
		deferredSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "deferred_set_size",
			Help:      "Current number of deferred identities awaiting processing.",
		}),
		processedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "processed_total",
			Help:      "Deferred events successfully handed to the processor.",
		}),
		processFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "process_failures_total",
			Help:      "Batches that exhausted their retry budget.",
		}),
		retryTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retry_total",
			Help:      "Processor retry attempts, across all batches.",
		}),
	}

	if reg != nil {
		reg.MustRegister(c.eventsTotal, c.deferredSetSize, c.processedTotal, c.processFailuresTotal, c.retryTotal)
	}

	return c
}

// IncEvent records one tracked event with the given outcome label
// ("immediate", "deferred", or "ignored").
func (c *Collector) IncEvent(outcome string) {
	if c == nil {
		return
	}
	c.eventsTotal.WithLabelValues(outcome).Inc()
}

// SetDeferredSetSize sets the current deferred-set gauge to n.
func (c *Collector) SetDeferredSetSize(n int) {
	if c == nil {
		return
	}
	c.deferredSetSize.Set(float64(n))
}

// IncProcessed records one successfully processed event.
func (c *Collector) IncProcessed() {
	if c == nil {
		return
	}
	c.processedTotal.Inc()
}

// IncProcessFailure records one batch that exhausted its retries.
func (c *Collector) IncProcessFailure() {
	if c == nil {
		return
	}
	c.processFailuresTotal.Inc()
}

// IncRetry records one processor retry attempt.
func (c *Collector) IncRetry() {
	if c == nil {
		return
	}
	c.retryTotal.Inc()
}
