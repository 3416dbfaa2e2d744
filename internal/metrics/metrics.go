// Package metrics wires Prometheus for the breaker. Grounded on
// internal/metrics/prometheus.go: the general shape (a registry,
// one constructor, MustRegister everything, a promhttp.Handler) is kept;
// the counters narrow to exactly the three spec.md §6 names
// (requests_total, successes_total, failures_total), plus a
// circuitBreakerState/circuitBreakerTripsTotal gauge+counter pair reused
// here, driven by Metrics.SetState/RecordTrip.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the Prometheus collectors for one breaker deployment. The
// meter name "DistributedCircuitBreaker" from spec.md §6 becomes the
// "breaker" namespace here, matching Prometheus naming conventions.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal  *prometheus.CounterVec
	successesTotal *prometheus.CounterVec
	failuresTotal  *prometheus.CounterVec

	stateGauge *prometheus.GaugeVec
	tripsTotal *prometheus.CounterVec
}

// New creates and registers the breaker metric collectors under namespace
// (e.g. "breaker").
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total Decide calls.",
		}, []string{"key"}),
		successesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "successes_total",
			Help:      "Total Report calls with success=true.",
		}, []string{"key"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Total Report calls with success=false.",
		}, []string{"key"}),
		stateGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Current breaker state (0=closed, 1=open, 2=half_open).",
		}, []string{"key"}),
		tripsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_trips_total",
			Help:      "Total breaker state transitions.",
		}, []string{"key", "to_state"}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.successesTotal,
		m.failuresTotal,
		m.stateGauge,
		m.tripsTotal,
	)
	return m
}

// Handler returns an http.Handler for Prometheus scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncRequests, IncSuccesses and IncFailures are the counter half of
// breaker.Sink; telemetry.Sink adds spans and forwards these calls here.
func (m *Metrics) IncRequests(key string)  { m.requestsTotal.WithLabelValues(key).Inc() }
func (m *Metrics) IncSuccesses(key string) { m.successesTotal.WithLabelValues(key).Inc() }
func (m *Metrics) IncFailures(key string)  { m.failuresTotal.WithLabelValues(key).Inc() }

// SetState records the current state gauge for key. Callers poll
// Engine.State() (e.g. on a ticker) and report it here; the engine itself
// has no dependency on this package.
func (m *Metrics) SetState(key string, state int) {
	m.stateGauge.WithLabelValues(key).Set(float64(state))
}

// RecordTrip increments the transition counter for key moving toState.
func (m *Metrics) RecordTrip(key, toState string) {
	m.tripsTotal.WithLabelValues(key, toState).Inc()
}
