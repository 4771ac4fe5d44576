// Package metrics holds the Prometheus collectors of the wellness hub.
// Collectors are registered on the default registry and exposed by the HTTP
// server at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wellness_hub"

// ══════════════════════════════════════════════════════════════════════════════
// VIEW RECOMPUTES
// ══════════════════════════════════════════════════════════════════════════════

var (
	// recomputes counts deferred view recomputes.
	// Labels: kind (list, profile), result (scheduled, applied, discarded, memo_hit)
	recomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "recomputes_total",
		Help:      "Deferred view recomputes by kind and result",
	}, []string{"kind", "result"})

	// recomputeLatency measures the time between scheduling and applying a result.
	recomputeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "recompute_latency_seconds",
		Help:      "Time from scheduling a recompute to applying its result",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}, []string{"kind"})

	// activeSessions tracks live dashboard sessions.
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "active_sessions",
		Help:      "Number of live dashboard sessions",
	})
)

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

var (
	// transitions counts intervention transition attempts.
	// Labels: action, outcome (success, failure, write_failed)
	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "intervention",
		Name:      "transitions_total",
		Help:      "Intervention transition attempts by action and outcome",
	}, []string{"action", "outcome"})
)

// ══════════════════════════════════════════════════════════════════════════════
// DATA SOURCE
// ══════════════════════════════════════════════════════════════════════════════

var (
	// inputClamps counts out-of-range student fields clamped at classification.
	// Labels: field
	inputClamps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "input_clamps_total",
		Help:      "Out-of-range student fields clamped before classification",
	}, []string{"field"})

	// sourceFailures counts failed reads from the data source.
	// Labels: op
	sourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "failures_total",
		Help:      "Failed data source reads by operation",
	}, []string{"op"})

	// cacheLookups counts snapshot cache lookups.
	// Labels: result (hit, miss, error)
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "cache_lookups_total",
		Help:      "Population cache lookups by result",
	}, []string{"result"})

	// breakerState is 0 closed, 1 half-open, 2 open.
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "breaker_state",
		Help:      "Circuit breaker state per guarded dependency",
	}, []string{"name"})

	// retries counts retry decisions.
	// Labels: policy (source, database, event_handler), outcome (retry, recovered, exhausted)
	retries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "retries_total",
		Help:      "Retry decisions by policy and outcome",
	}, []string{"policy", "outcome"})

	// eventsPublished counts notifications by type.
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Published domain events by type",
	}, []string{"type"})

	// handlerDuration measures event handler execution.
	handlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "handler_duration_seconds",
		Help:      "Event handler execution time",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type", "status"})
)

// ══════════════════════════════════════════════════════════════════════════════
// HTTP
// ══════════════════════════════════════════════════════════════════════════════

var (
	// httpRequests measures API requests.
	// Labels: method, route (the gin route pattern), status
	httpRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API request latency by route and status",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORDERS
// ══════════════════════════════════════════════════════════════════════════════

// RecordRecompute counts one recompute outcome.
func RecordRecompute(kind, result string) {
	recomputes.WithLabelValues(kind, result).Inc()
}

// ObserveRecompute records how long an applied recompute took.
func ObserveRecompute(kind string, d time.Duration) {
	recomputeLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// SessionOpened increments the live session gauge.
func SessionOpened() { activeSessions.Inc() }

// SessionClosed decrements the live session gauge.
func SessionClosed() { activeSessions.Dec() }

// RecordTransition counts one transition attempt.
func RecordTransition(action, outcome string) {
	transitions.WithLabelValues(action, outcome).Inc()
}

// RecordClamp counts one clamped input field.
func RecordClamp(field string) {
	inputClamps.WithLabelValues(field).Inc()
}

// RecordSourceFailure counts a failed data source read.
func RecordSourceFailure(op string) {
	sourceFailures.WithLabelValues(op).Inc()
}

// RecordCacheLookup counts a cache lookup.
func RecordCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

// SetBreakerState records a circuit breaker transition.
func SetBreakerState(name, state string) {
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	breakerState.WithLabelValues(name).Set(v)
}

// RecordRetry counts one retry decision.
func RecordRetry(policy, outcome string) {
	retries.WithLabelValues(policy, outcome).Inc()
}

// RecordPublish counts a published event.
func RecordPublish(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

// ObserveHandler records one event handler execution.
func ObserveHandler(eventType string, d time.Duration, ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	handlerDuration.WithLabelValues(eventType, status).Observe(d.Seconds())
}

// ObserveHTTP records one API request.
func ObserveHTTP(method, route, status string, d time.Duration) {
	httpRequests.WithLabelValues(method, route, status).Observe(d.Seconds())
}
