package jobs

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "cyclebook"
	subsystem = "job"
)

var (
	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_total",
			Help:      "Background job runs, by job name",
		},
		[]string{"job"},
	)

	jobErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Background job runs that returned an error",
		},
		[]string{"job"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Background job duration in seconds",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 30},
		},
		[]string{"job"},
	)

	jobLastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without error",
		},
		[]string{"job"},
	)

	// Set by the open-period check on every run.
	openPeriodsOverdue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_periods_overdue",
			Help:      "Open periods whose day number exceeds jobs.max_open_days, as of the last check",
		},
	)
)

func init() {
	prometheus.MustRegister(jobRuns, jobErrors, jobDuration, jobLastSuccess, openPeriodsOverdue)
}
