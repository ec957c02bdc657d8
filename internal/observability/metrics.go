package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SessionEvents      *prometheus.CounterVec
	Turns              *prometheus.CounterVec
	InferenceAttempts  *prometheus.CounterVec
	InferenceLatency   *prometheus.HistogramVec
	ExtractionFailures *prometheus.CounterVec
	ReconcileScans     prometheus.Counter
	ReconcileSegments  *prometheus.CounterVec
	WSMessages         *prometheus.CounterVec

	turnStages *turnStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers the instruments on reg instead of the global registry.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Handled conversation turns by outcome.",
		}, []string{"outcome"}),
		InferenceAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_attempts_total",
			Help:      "Inference provider attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		InferenceLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_latency_ms",
			Help:      "Latency of a single provider attempt in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}, []string{"provider"}),
		ExtractionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lead_extraction_failures_total",
			Help:      "Lead extractions that yielded an empty record, by reason.",
		}, []string{"reason"}),
		ReconcileScans: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_scans_total",
			Help:      "Completed reconciliation scans.",
		}),
		ReconcileSegments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_segments_total",
			Help:      "Segments examined by the reconciler, by result.",
		}, []string{"result"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		turnStages: newTurnStageWindow(256),
	}
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveInferenceAttempt(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.InferenceAttempts.WithLabelValues(provider, outcome).Inc()
	m.InferenceLatency.WithLabelValues(provider).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveExtractionFailure(reason string) {
	if m == nil {
		return
	}
	m.ExtractionFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveReconcileScan() {
	if m == nil {
		return
	}
	m.ReconcileScans.Inc()
}

func (m *Metrics) ObserveReconcileSegment(result string) {
	if m == nil {
		return
	}
	m.ReconcileSegments.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveWSMessage(direction, messageType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, messageType).Inc()
}

// ObserveTurnStage records a per-stage latency sample for /v1/perf/latency.
func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.turnStages.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) ObserveTurnIndicator(name string) {
	if m == nil {
		return
	}
	m.turnStages.ObserveIndicator(name)
}

func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	if m == nil {
		return newTurnStageWindow(1).Snapshot()
	}
	return m.turnStages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
