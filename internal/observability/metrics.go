package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// aggregation pipeline.
type Metrics struct {
	SignalsFetched  *prometheus.CounterVec // labels: source
	FetchErrors     *prometheus.CounterVec // labels: source
	FetchDuration   *prometheus.HistogramVec
	SignalsIngested *prometheus.CounterVec // labels: source

	SignalsDuplicate  prometheus.Counter
	SignalsIrrelevant prometheus.Counter

	EventsCreated   prometheus.Counter
	EventsUpdated   prometheus.Counter
	EventsPublished prometheus.Counter
	EventsActive    prometheus.Gauge
	EventsExpired   prometheus.Counter

	PipelineRunning prometheus.Gauge

	APIRequestDuration *prometheus.HistogramVec // labels: path, method
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.SignalsFetched,
		m.FetchErrors,
		m.FetchDuration,
		m.SignalsIngested,
		m.SignalsDuplicate,
		m.SignalsIrrelevant,
		m.EventsCreated,
		m.EventsUpdated,
		m.EventsPublished,
		m.EventsActive,
		m.EventsExpired,
		m.PipelineRunning,
		m.APIRequestDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SignalsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_intel",
			Name:      "signals_fetched_total",
			Help:      "Raw signals returned by each source adapter.",
		}, []string{"source"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_intel",
			Name:      "fetch_errors_total",
			Help:      "Failed fetch cycles per source.",
		}, []string{"source"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "disaster_intel",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of one source fetch cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		SignalsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_intel",
			Name:      "signals_ingested_total",
			Help:      "Signals that passed dedupe and relevance and reached correlation.",
		}, []string{"source"}),
		SignalsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_intel",
			Name:      "signals_duplicate_total",
			Help:      "Signals dropped by the duplicate prefilter.",
		}),
		SignalsIrrelevant: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_intel",
			Name:      "signals_irrelevant_total",
			Help:      "Signals dropped below the relevance threshold.",
		}),
		EventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_intel",
			Name:      "events_created_total",
			Help:      "New events opened by correlation.",
		}),
		EventsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_intel",
			Name:      "events_updated_total",
			Help:      "Signals merged into existing events.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_intel",
			Name:      "events_published_total",
			Help:      "Events written to the Kafka sink topic.",
		}),
		EventsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "disaster_intel",
			Name:      "events_active",
			Help:      "Events currently held in the store.",
		}),
		EventsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_intel",
			Name:      "events_expired_total",
			Help:      "Events removed by TTL expiry.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "disaster_intel",
			Name:      "pipeline_running",
			Help:      "1 when the poll loops are active, 0 when shut down.",
		}),
		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "disaster_intel",
			Name:      "api_request_duration_seconds",
			Help:      "Duration of API requests by route.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"path", "method"}),
	}
}
