package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkreach_sweep_runs_total",
			Help: "Total number of session sweep runs by status.",
		},
		[]string{"status"},
	)
	sweepDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linkreach_sweep_duration_ms",
			Help:    "Duration of session sweep runs in milliseconds.",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		sweepRunsTotal,
		sweepDurationMs,
	)
}
