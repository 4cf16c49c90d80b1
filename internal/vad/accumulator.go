package vad

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
)

// AccumulatorConfig holds the segmentation limits, expressed in frames
type AccumulatorConfig struct {
	SilenceFrames   int // Consecutive silence that ends an utterance (13 = 400ms)
	MinSpeechFrames int // Speech frames needed to emit instead of discard (6 = 200ms)
	MaxFrames       int // Safety-net segment length (200 = 6s)
	PrerollFrames   int // Trailing silence kept ahead of speech onset (10 = 600ms)
}

// DefaultAccumulatorConfig returns the limits used for 30ms frames
func DefaultAccumulatorConfig() AccumulatorConfig {
	return ConfigFromDurations(audio.FrameDuration,
		400*time.Millisecond, 200*time.Millisecond, 6*time.Second, 10)
}

// ConfigFromDurations converts durations to frame counts by integer division.
// The pre-roll capacity is given in frames directly.
func ConfigFromDurations(frame, silence, minSpeech, maxChunk time.Duration, prerollFrames int) AccumulatorConfig {
	if frame <= 0 {
		frame = audio.FrameDuration
	}
	return AccumulatorConfig{
		SilenceFrames:   int(silence / frame),
		MinSpeechFrames: int(minSpeech / frame),
		MaxFrames:       int(maxChunk / frame),
		PrerollFrames:   prerollFrames,
	}
}

// Sink receives every flushed segment
type Sink func(seg audio.Segment)

// Accumulator is the per-stream VAD chunker. It is driven by exactly one
// goroutine; only the counters are safe to read concurrently.
type Accumulator struct {
	source     audio.Source
	config     AccumulatorConfig
	classifier *Classifier
	sink       Sink
	logger     *slog.Logger

	frames      []audio.Frame
	preroll     *prerollRing
	speechCount int
	silenceRun  int
	totalFrames int
	inSpeech    bool

	emitted   atomic.Uint64
	discarded atomic.Uint64
	processed atomic.Uint64
}

// AccumulatorState is a snapshot of the accumulator internals
type AccumulatorState struct {
	InSpeech    bool `json:"in_speech"`
	Frames      int  `json:"frames"`
	Preroll     int  `json:"preroll"`
	SpeechCount int  `json:"speech_count"`
	SilenceRun  int  `json:"silence_run"`
	TotalFrames int  `json:"total_frames"`
}

// AccumulatorStats holds counters that may be read from any goroutine
type AccumulatorStats struct {
	Source          string  `json:"source"`
	FramesProcessed uint64  `json:"frames_processed"`
	SegmentsEmitted uint64  `json:"segments_emitted"`
	Discarded       uint64  `json:"segments_discarded"`
	Threshold       float64 `json:"threshold"`
}

// NewAccumulator creates an accumulator for one stream
func NewAccumulator(source audio.Source, config AccumulatorConfig, classifier *Classifier, sink Sink, logger *slog.Logger) *Accumulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator{
		source:     source,
		config:     config,
		classifier: classifier,
		sink:       sink,
		logger:     logger,
		preroll:    newPrerollRing(config.PrerollFrames),
	}
}

// PushSamples slices arbitrary-length samples into frames and pushes them.
// A trailing slice shorter than half a frame is ignored.
func (a *Accumulator) PushSamples(samples []float32) {
	for start := 0; start < len(samples); start += audio.FrameSamples {
		end := min(start+audio.FrameSamples, len(samples))
		if end-start < audio.FrameSamples/2 {
			continue
		}
		frame := make(audio.Frame, end-start)
		copy(frame, samples[start:end])
		a.Push(frame)
	}
}

// Push advances the state machine by one frame and returns true when the
// frame was classified as speech.
func (a *Accumulator) Push(frame audio.Frame) bool {
	a.processed.Add(1)
	isSpeech := a.classifier.Classify(frame)

	if isSpeech {
		if !a.inSpeech {
			// Speech onset: pre-roll goes ahead of the first speech frame.
			a.frames = append(a.frames, a.preroll.drain()...)
			a.inSpeech = true
		}
		a.frames = append(a.frames, frame)
		a.speechCount++
		a.silenceRun = 0
		a.totalFrames++
		if a.totalFrames >= a.config.MaxFrames {
			a.flushOrDiscard("max_length")
		}
		return true
	}

	if !a.inSpeech {
		a.preroll.push(frame)
		return false
	}

	// Pauses inside an utterance are kept.
	a.frames = append(a.frames, frame)
	a.silenceRun++
	a.totalFrames++

	if a.silenceRun >= a.config.SilenceFrames {
		a.flushOrDiscard("pause")
	} else if a.totalFrames >= a.config.MaxFrames {
		a.flushOrDiscard("max_length")
	}
	return false
}

// flushOrDiscard emits the segment when it holds enough speech, then resets.
func (a *Accumulator) flushOrDiscard(reason string) {
	if a.speechCount >= a.config.MinSpeechFrames {
		a.flush(reason)
		return
	}

	a.discarded.Add(1)
	a.logger.Debug("Discarded short speech run",
		slog.String("source", a.source.String()),
		slog.Int("speech_frames", a.speechCount),
		slog.String("reason", reason),
	)
	a.reset()
}

func (a *Accumulator) flush(reason string) {
	if len(a.frames) > 0 {
		seg := audio.NewSegment(a.source, a.frames)
		a.emitted.Add(1)
		a.logger.Debug("Segment flushed",
			slog.String("source", a.source.String()),
			slog.String("segment_id", seg.ID),
			slog.Int("frames", seg.Frames),
			slog.Int("speech_frames", a.speechCount),
			slog.String("reason", reason),
		)
		a.emit(seg)
	}
	a.reset()
}

// emit hands the segment to the sink, containing any panic in the sink.
func (a *Accumulator) emit(seg audio.Segment) {
	if a.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Segment sink panicked",
				slog.String("source", a.source.String()),
				slog.Any("panic", r),
			)
		}
	}()
	a.sink(seg)
}

// Reset drops any utterance in progress and the pre-roll.
func (a *Accumulator) Reset() {
	a.reset()
}

func (a *Accumulator) reset() {
	a.frames = nil
	a.preroll.clear()
	a.speechCount = 0
	a.silenceRun = 0
	a.totalFrames = 0
	a.inSpeech = false
}

// State returns a snapshot of the state machine. Call it from the owning
// goroutine only.
func (a *Accumulator) State() AccumulatorState {
	return AccumulatorState{
		InSpeech:    a.inSpeech,
		Frames:      len(a.frames),
		Preroll:     a.preroll.len(),
		SpeechCount: a.speechCount,
		SilenceRun:  a.silenceRun,
		TotalFrames: a.totalFrames,
	}
}

// Stats returns the concurrency-safe counters
func (a *Accumulator) Stats() AccumulatorStats {
	return AccumulatorStats{
		Source:          a.source.String(),
		FramesProcessed: a.processed.Load(),
		SegmentsEmitted: a.emitted.Load(),
		Discarded:       a.discarded.Load(),
		Threshold:       a.classifier.Threshold(),
	}
}

// Classifier returns the classifier driving this accumulator
func (a *Accumulator) Classifier() *Classifier {
	return a.classifier
}

// Source returns the stream tag applied to emitted segments
func (a *Accumulator) Source() audio.Source {
	return a.source
}
