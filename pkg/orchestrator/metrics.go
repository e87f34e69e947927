package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters/histograms/gauges the orchestrator exposes:
// requests_total, per-category cache hit rates, per-handler success/failure,
// per-stage duration histograms, active_sessions, pending_clarifications.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	HandlerSuccess     *prometheus.CounterVec
	HandlerFailure     *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	ActiveSessions     prometheus.GaugeFunc
	PendingClarifications prometheus.GaugeFunc
}

// NewMetrics registers and returns the orchestrator's metric set. Gauge
// callbacks are supplied by the caller (the session manager and
// clarification engine own the counted state).
func NewMetrics(reg prometheus.Registerer, activeSessions, pendingClarifications func() float64) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceorch_requests_total",
			Help: "Total orchestrated requests by terminal outcome.",
		}, []string{"outcome"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceorch_cache_hits_total",
			Help: "Cache hits by category.",
		}, []string{"category"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceorch_cache_misses_total",
			Help: "Cache misses by category.",
		}, []string{"category"}),
		HandlerSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceorch_handler_success_total",
			Help: "Successful handler invocations by category.",
		}, []string{"category"}),
		HandlerFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceorch_handler_failure_total",
			Help: "Failed handler invocations by category.",
		}, []string{"category"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceorch_stage_duration_seconds",
			Help:    "Per-stage pipeline duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	m.ActiveSessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "voiceorch_active_sessions",
		Help: "Sessions currently held in the in-process mirror.",
	}, activeSessions)
	m.PendingClarifications = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "voiceorch_pending_clarifications",
		Help: "Sessions with an outstanding pending clarification.",
	}, pendingClarifications)

	reg.MustRegister(m.RequestsTotal, m.CacheHits, m.CacheMisses, m.HandlerSuccess, m.HandlerFailure,
		m.StageDuration, m.ActiveSessions, m.PendingClarifications)
	return m
}
