package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice coach service.
// Every Record and Set helper is safe to call on a nil *Metrics.
type Metrics struct {
	// Capture metrics
	FramesRead     *prometheus.CounterVec
	DeviceSwaps    *prometheus.CounterVec
	DeviceErrors   *prometheus.CounterVec
	DeviceAttached *prometheus.GaugeVec

	// VAD metrics
	FramesClassified  *prometheus.CounterVec
	SegmentsEmitted   *prometheus.CounterVec
	SegmentsDiscarded *prometheus.CounterVec
	SegmentsDropped   *prometheus.CounterVec
	SegmentDuration   prometheus.Histogram

	// Dispatch metrics
	Dispatches      *prometheus.CounterVec
	GateRejections  *prometheus.CounterVec
	TranscriptLines prometheus.Gauge

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter

	// Monitor metrics
	SilenceLevel prometheus.Gauge
	SpeakerLevel prometheus.Gauge
	CuesPlayed   *prometheus.CounterVec
	CuesDropped  prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		// Capture metrics
		FramesRead: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecoach_frames_read_total",
			Help: "Total number of 30ms frames read from capture devices",
		}, []string{"worker"}),
		DeviceSwaps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecoach_device_swaps_total",
			Help: "Total number of device changes applied by capture workers",
		}, []string{"worker"}),
		DeviceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecoach_device_errors_total",
			Help: "Total number of device open or read failures",
		}, []string{"worker", "stage"}),
		DeviceAttached: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voicecoach_device_attached",
			Help: "Whether a capture worker currently has an open device (1) or not (0)",
		}, []string{"worker"}),

		// VAD metrics
		FramesClassified: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecoach_frames_classified_total",
			Help: "Total number of frames classified by the VAD",
		}, []string{"source", "class"}),
		SegmentsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecoach_segments_emitted_total",
			Help: "Total number of speech segments emitted by accumulators",
		}, []string{"source"}),
		SegmentsDiscarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecoach_segments_discarded_total",
			Help: "Total number of speech runs discarded as too short",
		}, []string{"source"}),
		SegmentsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecoach_segments_dropped_total",
			Help: "Total number of segments dropped because the queue was full",
		}, []string{"source"}),
		SegmentDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecoach_segment_duration_seconds",
			Help:    "Duration of emitted speech segments",
			Buckets: prometheus.LinearBuckets(0.5, 0.5, 12), // 0.5s to 6s
		}),

		// Dispatch metrics
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecoach_dispatches_total",
			Help: "Total number of segments dispatched for transcription",
		}, []string{"tag"}),
		GateRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecoach_gate_rejections_total",
			Help: "Total number of segments rejected by the speech gate",
		}, []string{"tag"}),
		TranscriptLines: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicecoach_transcript_lines",
			Help: "Current number of lines in the rolling transcript",
		}),

		// Transcription metrics
		TranscriptionRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "voicecoach_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: f.NewCounter(prometheus.CounterOpts{
			Name: "voicecoach_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "voicecoach_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecoach_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),
		TranscriptionRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "voicecoach_transcription_retries_total",
			Help: "Total number of transcription request retries",
		}),

		// Monitor metrics
		SilenceLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicecoach_silence_level",
			Help: "Current microphone silence escalation level",
		}),
		SpeakerLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicecoach_speaker_level",
			Help: "Current speaker meter value (RMS)",
		}),
		CuesPlayed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecoach_cues_played_total",
			Help: "Total number of alert cues played by level",
		}, []string{"level"}),
		CuesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "voicecoach_cues_dropped_total",
			Help: "Total number of alert cues dropped because the player was busy",
		}),

		// HTTP API metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecoach_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicecoach_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecoach_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFrameRead increments the frames read counter for a worker
func (m *Metrics) RecordFrameRead(worker string) {
	if m == nil {
		return
	}
	m.FramesRead.WithLabelValues(worker).Inc()
}

// RecordDeviceSwap increments the device swaps counter
func (m *Metrics) RecordDeviceSwap(worker string) {
	if m == nil {
		return
	}
	m.DeviceSwaps.WithLabelValues(worker).Inc()
}

// RecordDeviceError records a failed open or read
func (m *Metrics) RecordDeviceError(worker, stage string) {
	if m == nil {
		return
	}
	m.DeviceErrors.WithLabelValues(worker, stage).Inc()
}

// SetDeviceAttached sets whether a worker holds an open device
func (m *Metrics) SetDeviceAttached(worker string, attached bool) {
	if m == nil {
		return
	}
	v := 0.0
	if attached {
		v = 1
	}
	m.DeviceAttached.WithLabelValues(worker).Set(v)
}

// RecordFrameClassified increments the classified frames counter
func (m *Metrics) RecordFrameClassified(source string, speech bool) {
	if m == nil {
		return
	}
	class := "silence"
	if speech {
		class = "speech"
	}
	m.FramesClassified.WithLabelValues(source, class).Inc()
}

// RecordSegmentEmitted records an emitted segment and its duration
func (m *Metrics) RecordSegmentEmitted(source string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SegmentsEmitted.WithLabelValues(source).Inc()
	m.SegmentDuration.Observe(durationSeconds)
}

// RecordSegmentDiscarded increments the discarded runs counter
func (m *Metrics) RecordSegmentDiscarded(source string) {
	if m == nil {
		return
	}
	m.SegmentsDiscarded.WithLabelValues(source).Inc()
}

// RecordSegmentDropped increments the queue overflow counter
func (m *Metrics) RecordSegmentDropped(source string) {
	if m == nil {
		return
	}
	m.SegmentsDropped.WithLabelValues(source).Inc()
}

// RecordDispatch increments the dispatches counter for a tag
func (m *Metrics) RecordDispatch(tag string) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(tag).Inc()
}

// RecordGateRejection increments the gate rejections counter for a tag
func (m *Metrics) RecordGateRejection(tag string) {
	if m == nil {
		return
	}
	m.GateRejections.WithLabelValues(tag).Inc()
}

// SetTranscriptLines sets the rolling transcript size
func (m *Metrics) SetTranscriptLines(n int) {
	if m == nil {
		return
	}
	m.TranscriptLines.Set(float64(n))
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	if m == nil {
		return
	}
	m.TranscriptionRetries.Inc()
}

// SetSilenceLevel sets the current silence escalation level
func (m *Metrics) SetSilenceLevel(level int) {
	if m == nil {
		return
	}
	m.SilenceLevel.Set(float64(level))
}

// SetSpeakerLevel sets the current speaker meter value
func (m *Metrics) SetSpeakerLevel(v float64) {
	if m == nil {
		return
	}
	m.SpeakerLevel.Set(v)
}

// RecordCuePlayed increments the cues played counter
func (m *Metrics) RecordCuePlayed(level string) {
	if m == nil {
		return
	}
	m.CuesPlayed.WithLabelValues(level).Inc()
}

// RecordCueDropped increments the dropped cues counter
func (m *Metrics) RecordCueDropped() {
	if m == nil {
		return
	}
	m.CuesDropped.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
