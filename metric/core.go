package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the engine-level metrics every dispatch shares.
// Component-specific metrics register through the MetricsRegistry.
type Metrics struct {
	// Routing metrics
	ManifestsResolved prometheus.Counter
	ItemsRouted       *prometheus.CounterVec
	ItemsUnrouted     *prometheus.CounterVec
	UnknownTags       prometheus.Counter

	// Dispatch metrics
	DispatchDuration *prometheus.HistogramVec
	PrintJobs        *prometheus.CounterVec
	PrintRetries     prometheus.Counter
	DisplayPublishes *prometheus.CounterVec
	AlertsRaised     prometheus.Counter

	// Transport metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all engine metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ManifestsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "routing",
			Name:      "manifests_resolved_total",
			Help:      "Total number of routing manifests resolved",
		}),

		ItemsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "routing",
			Name:      "items_routed_total",
			Help:      "Total order items routed, by destination station",
		}, []string{"station", "kind"}),

		ItemsUnrouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "routing",
			Name:      "items_unrouted_total",
			Help:      "Total order items that matched no active station",
		}, []string{"reason"}),

		UnknownTags: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "routing",
			Name:      "unknown_tags_total",
			Help:      "Total route tags seen on items but absent from the tag registry",
		}),

		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pos",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Per-destination delivery duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "outcome"}),

		PrintJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "dispatch",
			Name:      "print_jobs_total",
			Help:      "Print jobs by terminal state",
		}, []string{"state"}),

		PrintRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "dispatch",
			Name:      "print_retries_total",
			Help:      "Total print delivery retry attempts",
		}),

		DisplayPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "dispatch",
			Name:      "display_publishes_total",
			Help:      "Display channel publishes by station and outcome",
		}, []string{"station", "outcome"}),

		AlertsRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "dispatch",
			Name:      "alerts_raised_total",
			Help:      "Operator alerts raised for terminal delivery failures",
		}),

		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pos",
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (0=disconnected, 1=connected)",
		}),

		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Total NATS reconnections",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ManifestsResolved,
		m.ItemsRouted,
		m.ItemsUnrouted,
		m.UnknownTags,
		m.DispatchDuration,
		m.PrintJobs,
		m.PrintRetries,
		m.DisplayPublishes,
		m.AlertsRaised,
		m.NATSConnected,
		m.NATSReconnects,
	}
}
