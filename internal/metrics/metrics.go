package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dubber_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dubber_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	VideoUploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dubber_video_upload_size_bytes",
			Help:    "Size of uploaded videos in bytes",
			Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 12), // 1MB to 2GB
		},
	)

	// Job Metrics
	JobsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dubber_jobs_created_total",
			Help: "Total number of dubbing jobs created",
		},
	)

	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dubber_jobs_completed_total",
			Help: "Total number of dubbing jobs reaching a terminal state",
		},
		[]string{"status"},
	)

	JobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dubber_jobs_in_progress",
			Help: "Number of jobs currently being processed",
		},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dubber_job_duration_seconds",
			Help:    "End-to-end job processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		},
	)

	// Pipeline Metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dubber_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
		[]string{"stage"},
	)

	StageFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dubber_stage_fallbacks_total",
			Help: "Number of times a pipeline stage degraded to its fallback path",
		},
		[]string{"stage"},
	)

	SeparationQuality = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dubber_separation_quality_score",
			Help:    "Quality score of source separation results",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
)
