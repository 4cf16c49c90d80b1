package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
	"github.com/Marabunta159/VoiceCoach/internal/events"
	"github.com/Marabunta159/VoiceCoach/internal/metrics"
	"github.com/Marabunta159/VoiceCoach/internal/transcription"
)

// DefaultPollTimeout is the wait per queue and cycle
const DefaultPollTimeout = 50 * time.Millisecond

// SegmentQueue is the consumer side of a capture worker's output queue
type SegmentQueue interface {
	Poll(ctx context.Context, timeout time.Duration) (audio.Segment, bool)
}

// MixerConfig holds the mixer settings
type MixerConfig struct {
	PollTimeout time.Duration
	Gate        Gate
}

// Mixer is the single consumer of both segment queues. Transcription runs
// synchronously on the mixer goroutine, so at most one request is in flight.
type Mixer struct {
	config      MixerConfig
	mic         SegmentQueue
	loopback    SegmentQueue
	transcriber transcription.Transcriber
	transcript  *Transcript
	publish     func(events.Segment)
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	cycles     atomic.Uint64
	dispatched [3]atomic.Uint64 // indexed by audio.Source
	rejected   atomic.Uint64
	failures   atomic.Uint64
	empty      atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewMixer creates a mixer. publish may be nil.
func NewMixer(config MixerConfig, mic, loopback SegmentQueue, transcriber transcription.Transcriber, transcript *Transcript, publish func(events.Segment), logger *slog.Logger, m *metrics.Metrics) *Mixer {
	if config.PollTimeout <= 0 {
		config.PollTimeout = DefaultPollTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if publish == nil {
		publish = func(events.Segment) {}
	}
	return &Mixer{
		config:      config,
		mic:         mic,
		loopback:    loopback,
		transcriber: transcriber,
		transcript:  transcript,
		publish:     publish,
		logger:      logger.With(slog.String("component", "mixer")),
		metrics:     m,
		now:         time.Now,
	}
}

// Start launches the mixer goroutine
func (m *Mixer) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for ctx.Err() == nil {
			m.cycle(ctx)
		}
	}()
}

// Stop ends the loop and waits for an in-flight transcription to finish
func (m *Mixer) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// cycle polls both queues once and dispatches what it found.
func (m *Mixer) cycle(ctx context.Context) {
	m.cycles.Add(1)

	micSeg, hasMic := m.mic.Poll(ctx, m.config.PollTimeout)
	loopSeg, hasLoop := m.loopback.Poll(ctx, m.config.PollTimeout)

	switch {
	case hasMic && hasLoop:
		m.dispatch(ctx, audio.Mix(micSeg.Samples, loopSeg.Samples), audio.SourceMixed)
	case hasMic:
		m.dispatch(ctx, micSeg.Samples, audio.SourceMic)
	case hasLoop:
		m.dispatch(ctx, loopSeg.Samples, audio.SourceLoopback)
	}
}

func (m *Mixer) dispatch(ctx context.Context, samples []float32, source audio.Source) {
	tag := source.String()
	if !m.config.Gate.HasSpeech(samples) {
		m.rejected.Add(1)
		m.metrics.RecordGateRejection(tag)
		m.logger.Debug("Segment rejected by speech gate",
			slog.String("source", tag),
			slog.Int("samples", len(samples)),
		)
		return
	}

	m.dispatched[source].Add(1)
	m.metrics.RecordDispatch(tag)
	m.metrics.RecordTranscriptionRequest()

	// Shutdown does not abort a transcription already started.
	start := time.Now()
	fragments, err := m.transcriber.Transcribe(context.WithoutCancel(ctx), samples)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		m.failures.Add(1)
		m.metrics.RecordTranscriptionFailure(elapsed)
		m.logger.Error("Transcription failed",
			slog.String("source", tag),
			slog.String("error", err.Error()),
		)
		return
	}
	m.metrics.RecordTranscriptionSuccess(elapsed)

	text := JoinFragments(fragments)
	if text == "" {
		m.empty.Add(1)
		return
	}

	at := m.now()
	n := m.transcript.Append(Line{Text: text, Source: source, At: at})
	m.metrics.SetTranscriptLines(n)

	m.logger.Info("Transcribed segment",
		slog.String("source", tag),
		slog.String("text", text),
		slog.Float64("duration_seconds", elapsed),
	)
	m.publish(events.Segment{Text: text, Source: source, At: at})
}

// JoinFragments trims every fragment, drops empty ones and joins the rest
// with single spaces.
func JoinFragments(fragments []string) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if s := strings.TrimSpace(f); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// MixerStats holds mixer counters
type MixerStats struct {
	Cycles       uint64            `json:"cycles"`
	Dispatched   map[string]uint64 `json:"dispatched"`
	GateRejected uint64            `json:"gate_rejected"`
	Failures     uint64            `json:"failures"`
	EmptyResults uint64            `json:"empty_results"`
}

// Stats returns a snapshot of the mixer counters
func (m *Mixer) Stats() MixerStats {
	return MixerStats{
		Cycles: m.cycles.Load(),
		Dispatched: map[string]uint64{
			audio.SourceMic.String():      m.dispatched[audio.SourceMic].Load(),
			audio.SourceLoopback.String(): m.dispatched[audio.SourceLoopback].Load(),
			audio.SourceMixed.String():    m.dispatched[audio.SourceMixed].Load(),
		},
		GateRejected: m.rejected.Load(),
		Failures:     m.failures.Load(),
		EmptyResults: m.empty.Load(),
	}
}
