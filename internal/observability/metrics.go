package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "crowd_evac"

// Metrics holds the Prometheus collectors for the service.
type Metrics struct {
	// Verification and escalation.
	Verifications *prometheus.CounterVec // labels: outcome={accepted,rejected}
	Decisions     *prometheus.CounterVec // labels: status={VERIFIED,FALSE_ALARM}
	Escalations   prometheus.Counter

	// Crowd guidance.
	CrowdAlerts     *prometheus.CounterVec // labels: result={triggered,throttled,no_crowd_pattern}
	SamplesIngested prometheus.Counter
	SamplesPurged   prometheus.Counter

	// Notification dispatch.
	Notifications *prometheus.CounterVec // labels: kind, outcome={delivered,failed,no_recipients}

	// External alert pipeline.
	MessagesConsumed        prometheus.Counter
	AlertsLoaded            prometheus.Counter
	TransformErrors         prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Media classifier.
	ClassifierRequests    *prometheus.CounterVec // labels: outcome={success,error}
	ClassifierCache       *prometheus.CounterVec // labels: result={hit,miss}
	ClassifierAPIDuration prometheus.Histogram

	HTTPRequestDuration *prometheus.HistogramVec // labels: route, code
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification submissions by outcome.",
		}, []string{"outcome"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Majority decisions reached, by resulting status.",
		}, []string{"status"}),
		Escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Disasters escalated to EMERGENCY_ACTIVE.",
		}),
		CrowdAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crowd_alerts_total",
			Help:      "Crowd evacuation alert evaluations by result.",
		}, []string{"result"}),
		SamplesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_samples_ingested_total",
			Help:      "Anonymized location samples stored.",
		}),
		SamplesPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_samples_purged_total",
			Help:      "Location samples deleted by the retention sweep.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification dispatches by kind and outcome.",
		}, []string{"kind", "outcome"}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_messages_consumed_total",
			Help:      "Total messages read from the external alerts topic.",
		}),
		AlertsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_alerts_loaded_total",
			Help:      "Total external alerts persisted.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_transform_errors_total",
			Help:      "Total external alert parse failures.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the external alert pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		ClassifierRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_requests_total",
			Help:      "Media classifier requests by outcome.",
		}, []string{"outcome"}),
		ClassifierCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_cache_total",
			Help:      "Media classifier cache lookups by result.",
		}, []string{"result"}),
		ClassifierAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_api_duration_seconds",
			Help:      "Media classifier request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Verifications,
		m.Decisions,
		m.Escalations,
		m.CrowdAlerts,
		m.SamplesIngested,
		m.SamplesPurged,
		m.Notifications,
		m.MessagesConsumed,
		m.AlertsLoaded,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.ClassifierRequests,
		m.ClassifierCache,
		m.ClassifierAPIDuration,
		m.HTTPRequestDuration,
	}
}
