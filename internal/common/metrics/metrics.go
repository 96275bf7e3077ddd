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
			Help: "Total number of Zeebe jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of Zeebe jobs failed by worker",
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
			Help: "Number of Zeebe jobs currently being processed",
		},
		[]string{"task_type"},
	)

	ReviewsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_fetched_total",
			Help: "Raw reviews yielded by platform fetches",
		},
		[]string{"platform"},
	)

	ReviewsAdmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_admitted_total",
			Help: "Reviews newly persisted by the admission gate",
		},
		[]string{"platform", "source"},
	)

	ReviewsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_skipped_total",
			Help: "Reviews skipped because they were already stored",
		},
		[]string{"platform", "source"},
	)

	ReplyDrafts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reply_drafts_total",
			Help: "Reply draft requests by outcome (generated, fallback)",
		},
		[]string{"outcome"},
	)

	NotificationJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_jobs_total",
			Help: "Notification jobs by channel and final status",
		},
		[]string{"channel", "status"},
	)

	NotificationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_attempts_total",
			Help: "Individual delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Inbound webhook requests by source and result",
		},
		[]string{"source", "result"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)
