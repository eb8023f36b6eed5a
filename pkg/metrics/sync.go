package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeTimeout  = "timeout"
)

// SyncMetrics records storefront request outcomes and reconciliation health.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	duration *prometheus.HistogramVec
	requests *prometheus.CounterVec
	drift    prometheus.Counter
	stale    prometheus.Counter
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_request_duration_seconds",
		Help:    "Duration of storefront requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_requests_total",
		Help: "Storefront requests by operation and outcome.",
	}, []string{"op", "outcome"})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_snapshot_drift_total",
		Help: "Fetched cart snapshots whose totals disagree with their lines.",
	})
	stale := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_snapshot_stale_total",
		Help: "Fetched cart snapshots discarded because a newer one was already applied.",
	})
	reg.MustRegister(duration, requests, drift, stale)
	return &SyncMetrics{
		duration: duration,
		requests: requests,
		drift:    drift,
		stale:    stale,
	}
}

// ObserveRequest records the duration and outcome of a single storefront request.
func (m *SyncMetrics) ObserveRequest(op, outcome string, duration time.Duration) {
	if m == nil || m.duration == nil || m.requests == nil {
		return
	}
	op = normalizeLabel(op)
	m.duration.WithLabelValues(op).Observe(duration.Seconds())
	m.requests.WithLabelValues(op, normalizeLabel(outcome)).Inc()
}

// IncDrift counts a snapshot whose reported totals disagree with its lines.
func (m *SyncMetrics) IncDrift() {
	if m == nil || m.drift == nil {
		return
	}
	m.drift.Inc()
}

// IncStale counts a snapshot dropped in favor of a newer reconcile.
func (m *SyncMetrics) IncStale() {
	if m == nil || m.stale == nil {
		return
	}
	m.stale.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
