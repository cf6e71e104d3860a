package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkreach_uploads_total",
			Help: "Total number of upload attempts by status.",
		},
		[]string{"status"},
	)
	uploadRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "linkreach_upload_rows_total",
			Help: "Total number of data rows accepted through uploads.",
		},
	)
	filterRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkreach_filter_requests_total",
			Help: "Total number of filter requests by outcome.",
		},
		[]string{"outcome"},
	)
	generationLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkreach_generation_latency_ms",
			Help:    "Latency of predicate generation calls in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 20000, 30000},
		},
		[]string{"provider", "status"},
	)
	rowEvaluationErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "linkreach_row_evaluation_errors_total",
			Help: "Total number of rows excluded because predicate evaluation failed.",
		},
	)
	artifactsWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "linkreach_artifacts_written_total",
			Help: "Total number of download artifacts written.",
		},
	)
	artifactBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "linkreach_artifact_bytes_total",
			Help: "Total bytes written to download artifacts.",
		},
	)
	sessionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "linkreach_sessions_expired_total",
			Help: "Total number of datasets removed by the expiry sweeper.",
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkreach_active_sessions",
			Help: "Number of live datasets after the last sweep.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		uploadsTotal,
		uploadRowsTotal,
		filterRequestsTotal,
		generationLatencyMs,
		rowEvaluationErrorsTotal,
		artifactsWrittenTotal,
		artifactBytesTotal,
		sessionsExpiredTotal,
		activeSessions,
	)
}

func ObserveUpload(status string, rows int) {
	uploadsTotal.WithLabelValues(status).Inc()
	if rows > 0 {
		uploadRowsTotal.Add(float64(rows))
	}
}

func ObserveFilter(outcome string) {
	filterRequestsTotal.WithLabelValues(outcome).Inc()
}

func ObserveGeneration(provider, status string, elapsed time.Duration) {
	generationLatencyMs.WithLabelValues(provider, status).Observe(float64(elapsed.Milliseconds()))
}

func AddRowEvaluationErrors(count int) {
	if count > 0 {
		rowEvaluationErrorsTotal.Add(float64(count))
	}
}

func ObserveArtifact(bytes int64) {
	artifactsWrittenTotal.Inc()
	if bytes > 0 {
		artifactBytesTotal.Add(float64(bytes))
	}
}

func ObserveSweep(expired int, live int) {
	if expired > 0 {
		sessionsExpiredTotal.Add(float64(expired))
	}
	if live < 0 {
		live = 0
	}
	activeSessions.Set(float64(live))
}
