package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voice",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "voice",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	FilesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "voice",
		Name:      "files_total",
		Help:      "Number of known files by status.",
	}, []string{"status"})

	ActiveJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "voice",
		Name:      "transcription_active_jobs",
		Help:      "Number of transcription jobs currently running.",
	})

	QueuedJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "voice",
		Name:      "transcription_queued_jobs",
		Help:      "Number of transcription jobs waiting for a worker.",
	})

	JobStartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voice",
		Name:      "transcription_job_starts_total",
		Help:      "Total number of transcription jobs started.",
	})

	JobFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voice",
		Name:      "transcription_job_failures_total",
		Help:      "Total number of transcription jobs that ended in error.",
	})

	JobCancellationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voice",
		Name:      "transcription_job_cancellations_total",
		Help:      "Total number of transcription jobs stopped by the user.",
	})

	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "voice",
		Name:      "transcription_job_duration_seconds",
		Help:      "Wall-clock duration of transcription jobs in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
	})

	WSClientsConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "voice",
		Name:      "ws_clients_connected",
		Help:      "Number of currently connected websocket clients.",
	})

	WSEventsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voice",
		Name:      "ws_events_dropped_total",
		Help:      "Total status events dropped on full websocket buffers.",
	})

	SummaryRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voice",
		Name:      "summary_requests_total",
		Help:      "Total meeting-summary generations by outcome.",
	}, []string{"outcome"})

	UploadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voice",
		Name:      "upload_bytes_total",
		Help:      "Total bytes of audio accepted by the upload endpoint.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		FilesTotal,
		ActiveJobs,
		QueuedJobs,
		JobStartsTotal,
		JobFailuresTotal,
		JobCancellationsTotal,
		JobDuration,
		WSClientsConnected,
		WSEventsDroppedTotal,
		SummaryRequestsTotal,
		UploadBytesTotal,
	)
}
