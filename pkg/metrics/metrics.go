// Package metrics registers the audit pipeline's prometheus collectors.
// Every collector is created via promauto against the default registry so
// a bare "/metrics" handler (promhttp.Handler()) exposes all of them
// without further wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DatabaseConnectionsGauge reports the Postgres connection pool's current
// open/idle/in_use counts, labeled by state.
var DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "audit",
	Subsystem: "database",
	Name:      "connections",
	Help:      "Current database connection pool counts by state (open, idle, in_use).",
}, []string{"state"})

// QueueDepthGauge reports the ingestion queue's ready and dead-letter
// backlogs, labeled by lane.
var QueueDepthGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "audit",
	Subsystem: "queue",
	Name:      "depth",
	Help:      "Current ingestion queue depth by lane (ready, dead_letter).",
}, []string{"lane"})

// CircuitBreakerStateGauge reports each registered circuit breaker's
// current state as 0 (closed), 1 (half_open), or 2 (open).
var CircuitBreakerStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "audit",
	Subsystem: "circuitbreaker",
	Name:      "state",
	Help:      "Current circuit breaker state by key (0=closed, 1=half_open, 2=open).",
}, []string{"key"})

// EventsIngestedTotal counts jobs processed by the ingestion worker pool,
// labeled by outcome (ok for persisted, rejected for nacked).
var EventsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "audit",
	Subsystem: "ingestion",
	Name:      "events_total",
	Help:      "Total audit events processed by the ingestion worker pool, by outcome.",
}, []string{"outcome"})

// IngestionLatencySeconds observes end-to-end time from job claim to
// durable persistence.
var IngestionLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "audit",
	Subsystem: "ingestion",
	Name:      "latency_seconds",
	Help:      "Time from job claim to durable persistence for an ingested audit event.",
	Buckets:   prometheus.DefBuckets,
})

// IntegrityVerificationsTotal counts scheduled integrity sweeps, labeled
// by result (verified, tampered, missing_hash).
var IntegrityVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "audit",
	Subsystem: "integrity",
	Name:      "verifications_total",
	Help:      "Total integrity verification sweeps, by result.",
}, []string{"result"})

// AlertsRaisedTotal counts alerts raised by the alert monitor, labeled by
// alert type.
var AlertsRaisedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "audit",
	Subsystem: "alerts",
	Name:      "raised_total",
	Help:      "Total alerts raised, by alert type.",
}, []string{"type"})

// CircuitStateValue maps a breaker's textual state to the numeric value
// CircuitBreakerStateGauge expects.
func CircuitStateValue(state string) float64 {
	switch state {
	case "open":
		return 2
	case "half_open":
		return 1
	default:
		return 0
	}
}
