// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	PlaybookNormalizeStrategy = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playbook_normalize_strategy_total",
			Help: "Agent responses normalized, by the extraction strategy that succeeded",
		},
		[]string{"strategy"},
	)

	PlaybookNormalizeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playbook_normalize_failures_total",
			Help: "Agent responses that could not be normalized, by reason",
		},
		[]string{"reason"},
	)

	PlaybookAgentCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playbook_agent_call_duration_seconds",
			Help:    "Duration of orchestration agent calls in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"status"},
	)
)
