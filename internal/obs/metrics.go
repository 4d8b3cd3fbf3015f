package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric descriptor atomd exposes, all
// registered on a dedicated registry rather than the global default so
// this process never collides with another instrumented library sharing
// its address space.
//
// Naming convention: atom_<subsystem>_<name>_<unit>.
type Metrics struct {
	registry *prometheus.Registry

	// FeedbackSubmittedTotal counts accepted update_stats calls.
	FeedbackSubmittedTotal prometheus.Counter

	// FeedbackRejectedTotal counts calls the engine refused, by error
	// kind (invalid_score, slot_regression, paused, config_invalid).
	FeedbackRejectedTotal *prometheus.CounterVec

	// TierTransitionsTotal counts tier changes, by from_tier and to_tier.
	TierTransitionsTotal *prometheus.CounterVec

	// QueueDepth is the current depth of the ingest submission queue.
	QueueDepth prometheus.Gauge

	// QueueFullTotal counts submissions rejected because the queue was
	// at capacity.
	QueueFullTotal prometheus.Counter

	// TrackedAgents is the current number of agents held in the registry.
	TrackedAgents prometheus.Gauge

	// EngineCallLatency records how long one registry.Submit call takes:
	// first-touch snapshot load, per-agent lock wait, update_stats, and
	// the snapshot save.
	EngineCallLatency prometheus.Histogram
}

// NewMetrics creates and registers all atomd Prometheus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		FeedbackSubmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "atom",
			Subsystem: "feedback",
			Name:      "submitted_total",
			Help:      "Total feedback events accepted by the engine.",
		}),

		FeedbackRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atom",
			Subsystem: "feedback",
			Name:      "rejected_total",
			Help:      "Total feedback events rejected by the engine, by reason.",
		}, []string{"reason"}),

		TierTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atom",
			Subsystem: "tier",
			Name:      "transitions_total",
			Help:      "Total tier transitions, by from_tier and to_tier.",
		}, []string{"from_tier", "to_tier"}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "atom",
			Subsystem: "ingest",
			Name:      "queue_depth",
			Help:      "Current depth of the feedback submission queue.",
		}),

		QueueFullTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "atom",
			Subsystem: "ingest",
			Name:      "queue_full_total",
			Help:      "Total submissions rejected because the queue was full.",
		}),

		TrackedAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "atom",
			Subsystem: "registry",
			Name:      "tracked_agents",
			Help:      "Current number of agents held in the in-process registry.",
		}),

		EngineCallLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "atom",
			Subsystem: "engine",
			Name:      "call_latency_seconds",
			Help:      "Latency of one registry submit call, including lock wait and snapshot persistence.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.FeedbackSubmittedTotal,
		m.FeedbackRejectedTotal,
		m.TierTransitionsTotal,
		m.QueueDepth,
		m.QueueFullTotal,
		m.TrackedAgents,
		m.EngineCallLatency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the http.Handler atomd's router mounts at GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
