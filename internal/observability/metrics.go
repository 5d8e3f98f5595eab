package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "road_weather"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingestion service.
type Metrics struct {
	PollOutcomes     *prometheus.CounterVec   // labels: trigger, status
	CycleDuration    *prometheus.HistogramVec // labels: trigger
	CyclesRunning    prometheus.Gauge
	ReportsPersisted prometheus.Counter

	// Source HTTP metrics.
	HTTPAttempts *prometheus.CounterVec // labels: outcome={success,error}

	// Registry and category metrics.
	StationChanges     *prometheus.CounterVec // labels: change={created,moved}
	UnregisteredLabels *prometheus.CounterVec // labels: category

	// Elevation lookup metrics.
	ElevationRequests *prometheus.CounterVec // labels: outcome={success,error,open}
	ElevationCache    *prometheus.CounterVec // labels: result={hit,miss}

	OutcomePublishErrors prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		PollOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_outcomes_total",
			Help:      "Station polling attempts by trigger and outcome status.",
		}, []string{"trigger", "status"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete ingestion cycle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"trigger"}),
		CyclesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cycles_running",
			Help:      "Number of ingestion cycles currently in progress.",
		}),
		ReportsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_persisted_total",
			Help:      "Total weather reports written to the store.",
		}),
		HTTPAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_attempts_total",
			Help:      "Outbound HTTP attempts by outcome.",
		}, []string{"outcome"}),
		StationChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_changes_total",
			Help:      "Station registry changes applied by reconciliation.",
		}, []string{"change"}),
		UnregisteredLabels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unregistered_labels_total",
			Help:      "Category labels committed without a code, by category.",
		}, []string{"category"}),
		ElevationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elevation_requests_total",
			Help:      "Elevation lookups by outcome.",
		}, []string{"outcome"}),
		ElevationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elevation_cache_total",
			Help:      "Elevation cache lookups by result.",
		}, []string{"result"}),
		OutcomePublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcome_publish_errors_total",
			Help:      "Poll outcomes that could not be published to Kafka.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PollOutcomes,
		m.CycleDuration,
		m.CyclesRunning,
		m.ReportsPersisted,
		m.HTTPAttempts,
		m.StationChanges,
		m.UnregisteredLabels,
		m.ElevationRequests,
		m.ElevationCache,
		m.OutcomePublishErrors,
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
