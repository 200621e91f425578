// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared by the submission and upload counters.
const (
	OutcomeSuccess          = "success"
	OutcomeIncomplete       = "incomplete"
	OutcomeAlreadySubmitted = "already_submitted"
	OutcomeNotFound         = "not_found"
	OutcomeError            = "error"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethics_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ethics_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethics_submissions_total",
			Help: "Submission attempts by outcome",
		},
		[]string{"outcome"},
	)

	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethics_uploads_total",
			Help: "Document uploads by outcome",
		},
		[]string{"outcome"},
	)

	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ethics_upload_bytes",
			Help:    "Size of uploaded documents in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

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
)
