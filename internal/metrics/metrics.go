package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "credio_alerts"

// Metrics holds the Prometheus collectors for ingestion, dispatch and the gateway.
type Metrics struct {
	// Ingestion.
	SourceFetches       *prometheus.CounterVec   // labels: source, outcome={success,failure,exhausted}
	SourceFetchDuration *prometheus.HistogramVec // labels: source
	SourceBreakerOpen   *prometheus.GaugeVec     // labels: source
	EventsPublished     *prometheus.CounterVec   // labels: change={created,updated}
	ActiveDisasters     prometheus.Gauge

	// Dispatch.
	AlertsSent        *prometheus.CounterVec // labels: type={disaster-alert,personal-alert,all-clear}
	DeliveryFailures  prometheus.Counter
	DuplicatesSkipped prometheus.Counter
	DispatchDuration  prometheus.Histogram

	// Gateway.
	Connections     prometheus.Gauge
	RiskAssessments prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere so
// tests can build as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Upstream fetch attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Duration of a source fetch including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		SourceBreakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_breaker_open",
			Help:      "1 while the source's circuit breaker is open.",
		}, []string{"source"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Disaster events handed to the dispatcher.",
		}, []string{"change"}),
		ActiveDisasters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_disasters",
			Help:      "Disaster events currently ACTIVE.",
		}),
		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_sent_total",
			Help:      "Alert frames queued to connections by message type.",
		}, []string{"type"}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Alert sends rejected because the connection was gone or slow.",
		}),
		DuplicatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_deliveries_skipped_total",
			Help:      "Deliveries skipped because the connection already had that version.",
		}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time from audience resolution to settlement of one event version.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live websocket connections.",
		}),
		RiskAssessments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_assessments_total",
			Help:      "Risk assessments computed on demand.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SourceFetches,
		m.SourceFetchDuration,
		m.SourceBreakerOpen,
		m.EventsPublished,
		m.ActiveDisasters,
		m.AlertsSent,
		m.DeliveryFailures,
		m.DuplicatesSkipped,
		m.DispatchDuration,
		m.Connections,
		m.RiskAssessments,
	}
}
