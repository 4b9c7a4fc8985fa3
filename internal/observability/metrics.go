package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the ingestion service.
type Metrics struct {
	ReadingsIngested prometheus.Counter
	IngestFailures   *prometheus.CounterVec // labels: stage={validate,persist,anomaly_persist,broadcast,sink}
	StressIndex      prometheus.Histogram
	StorageErrors    *prometheus.CounterVec // labels: op={append,append_anomaly,latest,query_range,query_anomalies}

	// Anomaly scoring.
	AnomaliesDetected *prometheus.CounterVec // labels: source={remote,heuristic}
	ScorerRequests    *prometheus.CounterVec // labels: outcome={success,error,no_decision}
	ScorerDuration    prometheus.Histogram

	// Fan-out.
	BroadcastEvents    prometheus.Counter
	Subscribers        prometheus.Gauge
	SubscribersDropped prometheus.Counter

	// Forecast proxy.
	ForecastRequests *prometheus.CounterVec // labels: outcome={success,cache_hit,unavailable,not_found}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := NewMetricsForTesting()

	prometheus.MustRegister(
		m.ReadingsIngested,
		m.IngestFailures,
		m.StressIndex,
		m.StorageErrors,
		m.AnomaliesDetected,
		m.ScorerRequests,
		m.ScorerDuration,
		m.BroadcastEvents,
		m.Subscribers,
		m.SubscribersDropped,
		m.ForecastRequests,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ReadingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "citypulse",
			Name:      "readings_ingested_total",
			Help:      "Total readings persisted and acknowledged.",
		}),
		IngestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citypulse",
			Name:      "ingest_failures_total",
			Help:      "Ingestion failures by pipeline stage.",
		}, []string{"stage"}),
		StressIndex: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "citypulse",
			Name:      "stress_index",
			Help:      "Distribution of computed stress index values.",
			Buckets:   []float64{10, 20, 30, 40, 55, 70, 80, 90, 100},
		}),
		StorageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citypulse",
			Name:      "storage_errors_total",
			Help:      "Time-series store failures by operation.",
		}, []string{"op"}),
		AnomaliesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citypulse",
			Name:      "anomalies_detected_total",
			Help:      "Readings flagged as anomalous by decision source.",
		}, []string{"source"}),
		ScorerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citypulse",
			Name:      "scorer_requests_total",
			Help:      "Remote anomaly scorer calls by outcome.",
		}, []string{"outcome"}),
		ScorerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "citypulse",
			Name:      "scorer_duration_seconds",
			Help:      "Remote anomaly scorer call duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		BroadcastEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "citypulse",
			Name:      "broadcast_events_total",
			Help:      "Events published to live subscribers.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "citypulse",
			Name:      "subscribers",
			Help:      "Currently registered live subscribers.",
		}),
		SubscribersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "citypulse",
			Name:      "subscribers_dropped_total",
			Help:      "Subscribers removed after a failed or backpressured send.",
		}),
		ForecastRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citypulse",
			Name:      "forecast_requests_total",
			Help:      "Forecast proxy requests by outcome.",
		}, []string{"outcome"}),
	}
}
