package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RendersTotal counts finished render requests by quality and response status.
	RendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_requests_total",
			Help: "Total number of render requests by outcome",
		},
		[]string{"quality", "status"},
	)

	// RenderDuration tracks how long the engine ran, in seconds.
	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "render_duration_seconds",
			Help:    "Duration of rendering engine runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
		},
		[]string{"quality"},
	)

	// RendersInFlight tracks renders currently holding an execution slot or waiting for one.
	RendersInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "render_in_flight",
			Help: "Number of render requests currently being processed",
		},
	)

	// ArtifactBytes tracks the size of stored artifacts.
	ArtifactBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "render_artifact_bytes",
			Help:    "Size of stored artifacts in bytes",
			Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8), // 16KB to ~256MB
		},
	)

	// SandboxFailures counts sandbox infrastructure failures (not scene errors).
	SandboxFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "render_sandbox_failures_total",
			Help: "Total number of sandbox infrastructure failures",
		},
	)

	// JobsSubmitted counts asynchronous jobs accepted by the API.
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_jobs_submitted_total",
			Help: "Total number of render jobs submitted to the queue",
		},
		[]string{"quality"},
	)

	// WorkersActive tracks the number of currently active worker goroutines.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "render_workers_active",
			Help: "Number of currently active worker goroutines",
		},
	)
)
