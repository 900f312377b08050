package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the dictation pipeline
type Metrics struct {
	// Session metrics
	SessionsStarted  prometheus.Counter
	SessionsFinished prometheus.Counter
	SessionErrors    prometheus.Counter
	SessionDuration  prometheus.Histogram
	SessionActive    prometheus.Gauge

	// Audio chunk metrics
	ChunksExtracted prometheus.Counter
	ChunksSubmitted prometheus.Counter
	ChunkDuration   prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// Insertion metrics
	InsertionsDispatched prometheus.Counter
	InsertionsCompleted  prometheus.Counter
	InsertionFailures    prometheus.Counter
	InsertionsPending    prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Session metrics
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "wtu_sessions_started_total",
			Help: "Total number of dictation sessions started",
		}),
		SessionsFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "wtu_sessions_finished_total",
			Help: "Total number of dictation sessions finished",
		}),
		SessionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "wtu_session_errors_total",
			Help: "Total number of sessions that ended in an error",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wtu_session_duration_seconds",
			Help:    "Duration of dictation sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		SessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wtu_session_active",
			Help: "Whether a dictation session is currently active",
		}),

		// Audio chunk metrics
		ChunksExtracted: factory.NewCounter(prometheus.CounterOpts{
			Name: "wtu_audio_chunks_extracted_total",
			Help: "Total number of audio chunks extracted from the capture buffer",
		}),
		ChunksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "wtu_audio_chunks_submitted_total",
			Help: "Total number of audio chunks submitted to the worker pool",
		}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wtu_chunk_duration_seconds",
			Help:    "Duration of extracted audio chunks",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~2 minutes
		}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "wtu_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "wtu_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "wtu_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wtu_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// Insertion metrics
		InsertionsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "wtu_insertions_dispatched_total",
			Help: "Total number of text insertions handed to the dispatcher",
		}),
		InsertionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "wtu_insertions_completed_total",
			Help: "Total number of text insertions performed",
		}),
		InsertionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "wtu_insertion_failures_total",
			Help: "Total number of text insertions that failed",
		}),
		InsertionsPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wtu_insertions_pending",
			Help: "Current number of insertions queued or running",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wtu_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wtu_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordSessionStarted marks a new session as active
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
	m.SessionActive.Set(1)
}

// RecordSessionFinished records the end of a session and its duration
func (m *Metrics) RecordSessionFinished(durationSeconds float64, failed bool) {
	m.SessionsFinished.Inc()
	m.SessionDuration.Observe(durationSeconds)
	m.SessionActive.Set(0)
	if failed {
		m.SessionErrors.Inc()
	}
}

// RecordChunkExtracted records an extracted audio chunk
func (m *Metrics) RecordChunkExtracted(durationSeconds float64) {
	m.ChunksExtracted.Inc()
	m.ChunkDuration.Observe(durationSeconds)
}

// RecordChunkSubmitted increments the submitted chunks counter
func (m *Metrics) RecordChunkSubmitted() {
	m.ChunksSubmitted.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionRequests.Inc()
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionRequests.Inc()
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordInsertionDispatched increments the dispatched insertions counter
func (m *Metrics) RecordInsertionDispatched() {
	m.InsertionsDispatched.Inc()
}

// RecordInsertionCompleted records one performed insertion
func (m *Metrics) RecordInsertionCompleted(failed bool) {
	m.InsertionsCompleted.Inc()
	if failed {
		m.InsertionFailures.Inc()
	}
}

// SetInsertionsPending sets the pending insertion gauge
func (m *Metrics) SetInsertionsPending(count int) {
	m.InsertionsPending.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
