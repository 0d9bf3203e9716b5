package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for the capture pipeline and uplink.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Capture sessions
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsStopped prometheus.Counter
	SessionDuration prometheus.Histogram

	// Pipeline
	BlocksProcessed prometheus.Counter
	InputSamples    prometheus.Counter
	OutputSamples   prometheus.Counter
	ChunksEmitted   prometheus.Counter
	PartialChunks   prometheus.Counter
	ResamplerErrors prometheus.Counter
	BlockDuration   prometheus.Histogram

	// Hand-off
	ChunksDropped prometheus.Counter
	QueueDepth    prometheus.Gauge

	// Uplink
	UplinkFramesSent *prometheus.CounterVec
	UplinkErrors     *prometheus.CounterVec
	UplinkReconnects prometheus.Counter
	Transcripts      prometheus.Counter

	// HTTP API
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return newMetrics(reg)
}

func newMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "uplink_active_sessions",
			Help: "Current number of capture sessions",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "uplink_sessions_started_total",
			Help: "Total number of capture sessions started",
		}),
		SessionsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "uplink_sessions_stopped_total",
			Help: "Total number of capture sessions stopped",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "uplink_session_duration_seconds",
			Help:    "Duration of capture sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		BlocksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "uplink_blocks_processed_total",
			Help: "Total number of audio blocks run through the pipeline",
		}),
		InputSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "uplink_input_samples_total",
			Help: "Total number of samples received at the source rate",
		}),
		OutputSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "uplink_output_samples_total",
			Help: "Total number of samples produced at the target rate",
		}),
		ChunksEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "uplink_chunks_emitted_total",
			Help: "Total number of PCM16 chunks emitted",
		}),
		PartialChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "uplink_partial_chunks_total",
			Help: "Total number of partial chunks flushed at session close",
		}),
		ResamplerErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "uplink_resampler_errors_total",
			Help: "Total number of resampler engine failures",
		}),
		BlockDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "uplink_block_processing_seconds",
			Help:    "Time spent processing one audio block",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 12), // 10us to ~20ms
		}),

		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "uplink_chunks_dropped_total",
			Help: "Total number of chunks dropped because the hand-off queue was full",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "uplink_queue_depth",
			Help: "Chunks waiting in the most recently updated hand-off queue",
		}),

		UplinkFramesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "uplink_frames_sent_total",
			Help: "Total number of frames sent to the speech service",
		}, []string{"format"}),
		UplinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "uplink_errors_total",
			Help: "Total number of uplink errors",
		}, []string{"stage"}),
		UplinkReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "uplink_reconnects_total",
			Help: "Total number of uplink reconnect attempts",
		}),
		Transcripts: factory.NewCounter(prometheus.CounterOpts{
			Name: "uplink_transcripts_total",
			Help: "Total number of transcripts received",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "uplink_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uplink_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordSessionStarted counts a new capture session.
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionStopped counts a finished session and its duration.
func (m *Metrics) RecordSessionStopped(duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsStopped.Inc()
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordBlock records one processed block.
func (m *Metrics) RecordBlock(inputSamples, outputSamples, chunks int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BlocksProcessed.Inc()
	m.InputSamples.Add(float64(inputSamples))
	m.OutputSamples.Add(float64(outputSamples))
	m.ChunksEmitted.Add(float64(chunks))
	m.BlockDuration.Observe(elapsed.Seconds())
}

// RecordFlushedChunk counts a chunk produced while closing a pipeline.
func (m *Metrics) RecordFlushedChunk(partial bool) {
	if m == nil {
		return
	}
	m.ChunksEmitted.Inc()
	if partial {
		m.PartialChunks.Inc()
	}
}

// RecordResamplerErrors counts resampler engine failures.
func (m *Metrics) RecordResamplerErrors(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.ResamplerErrors.Add(float64(n))
}

// RecordDropped counts chunks the hand-off queue rejected.
func (m *Metrics) RecordDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChunksDropped.Add(float64(n))
}

// SetQueueDepth reports the current hand-off depth.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// RecordFrameSent counts frames written to the speech service.
func (m *Metrics) RecordFrameSent(format string, frames int) {
	if m == nil {
		return
	}
	m.UplinkFramesSent.WithLabelValues(format).Add(float64(frames))
}

// RecordUplinkError counts an uplink failure at stage (dial, hello, send, read).
func (m *Metrics) RecordUplinkError(stage string) {
	if m == nil {
		return
	}
	m.UplinkErrors.WithLabelValues(stage).Inc()
}

// RecordReconnect counts a reconnect attempt.
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.UplinkReconnects.Inc()
}

// RecordTranscript counts a transcript received from the speech service.
func (m *Metrics) RecordTranscript() {
	if m == nil {
		return
	}
	m.Transcripts.Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
