// Package metrics exposes Prometheus instrumentation for reconciliation runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ipsync"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	outcomes        *prometheus.CounterVec
	retries         *prometheus.CounterVec
	exhausted       prometheus.Counter
	pairingFailures *prometheus.CounterVec
	runDuration     prometheus.Histogram
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Per-address mutation outcomes.",
		}, []string{"operation", "status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried provider calls by reason.",
		}, []string{"reason"}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_exhausted_total",
			Help:      "Provider calls that ran out of retry attempts.",
		}),
		pairingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairing_failures_total",
			Help:      "Pairings aborted before convergence.",
		}, []string{"stage"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of reconciliation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
	m.registry.MustRegister(m.outcomes, m.retries, m.exhausted, m.pairingFailures, m.runDuration)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Outcome counts one per-address result.
func (m *Metrics) Outcome(operation, status string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(operation, status).Inc()
}

// Retry counts one retried attempt.
func (m *Metrics) Retry(reason string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(reason).Inc()
}

// RetryExhausted counts a call that gave up.
func (m *Metrics) RetryExhausted() {
	if m == nil {
		return
	}
	m.exhausted.Inc()
}

// PairingFailure counts an aborted pairing.
func (m *Metrics) PairingFailure(stage string) {
	if m == nil {
		return
	}
	m.pairingFailures.WithLabelValues(stage).Inc()
}

// ObserveRun records a run's duration.
func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}
