package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn pipeline stages observed by the latency window and failure counters.
const (
	StageSearch   = "search"
	StageGenerate = "generate"
	StagePersist  = "persist"
	StageMemorize = "memorize"
	StageTotal    = "turn_total"
)

// Turn outcomes recorded on TurnsTotal.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeApology  = "apology"
	OutcomeRejected = "rejected"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	TurnsTotal     *prometheus.CounterVec
	StageFailures  *prometheus.CounterVec
	TurnLatency    prometheus.Histogram
	RetrievedFacts prometheus.Histogram
	ActiveSessions prometheus.Gauge
	SessionEvents  *prometheus.CounterVec
	WSMessages     *prometheus.CounterVec

	stages *turnStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith registers every instrument on reg. Tests pass a fresh
// registry so construction stays repeatable.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Handled turns by outcome.",
		}, []string{"outcome"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline stage failures by stage.",
		}, []string{"stage"}),
		TurnLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "End-to-end turn latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}),
		RetrievedFacts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_facts",
			Help:      "Memory facts retrieved per turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active chat sessions.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		stages: newTurnStageWindow(256),
	}
}

// ObserveTurnStage records one stage duration in the sliding latency window.
func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	m.stages.Observe(stage, float64(d.Milliseconds()))
	if stage == StageTotal {
		m.TurnLatency.Observe(float64(d.Milliseconds()))
	}
}

// ObserveIndicator bumps a named turn indicator in the latency snapshot.
func (m *Metrics) ObserveIndicator(name string) {
	m.stages.ObserveIndicator(name)
}

// SnapshotTurnStages returns per-stage latency percentiles for /api/perf.
func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
