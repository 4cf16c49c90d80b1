package vad

import (
	"log/slog"
	"os"
	"testing"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
)

const testThreshold = 0.008

var (
	speech  = constantFrame(0.1)
	silence = constantFrame(0)
)

type collector struct {
	segments []audio.Segment
}

func (c *collector) sink(seg audio.Segment) {
	c.segments = append(c.segments, seg)
}

func newTestAccumulator(t *testing.T) (*Accumulator, *collector) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	c := &collector{}
	acc := NewAccumulator(audio.SourceMic, DefaultAccumulatorConfig(), NewClassifier(testThreshold), c.sink, logger)
	return acc, c
}

func pushN(acc *Accumulator, frame audio.Frame, n int) {
	for i := 0; i < n; i++ {
		acc.Push(frame)
	}
}

func TestDefaultAccumulatorConfig(t *testing.T) {
	cfg := DefaultAccumulatorConfig()
	want := AccumulatorConfig{SilenceFrames: 13, MinSpeechFrames: 6, MaxFrames: 200, PrerollFrames: 10}
	if cfg != want {
		t.Errorf("Unexpected config: got %+v, want %+v", cfg, want)
	}
}

func TestSilenceOnlyNeverEmits(t *testing.T) {
	acc, c := newTestAccumulator(t)

	pushN(acc, silence, 1000)

	if len(c.segments) != 0 {
		t.Fatalf("Expected no segments, got %d", len(c.segments))
	}
	state := acc.State()
	if state.InSpeech || state.Frames != 0 {
		t.Errorf("Expected idle state, got %+v", state)
	}
	if state.Preroll > acc.config.PrerollFrames {
		t.Errorf("Pre-roll exceeded capacity: %d", state.Preroll)
	}
}

func TestShortSpeechDiscarded(t *testing.T) {
	acc, c := newTestAccumulator(t)
	cfg := acc.config

	pushN(acc, speech, cfg.MinSpeechFrames-1)
	pushN(acc, silence, cfg.SilenceFrames)

	if len(c.segments) != 0 {
		t.Fatalf("Expected short speech to be discarded, got %d segments", len(c.segments))
	}

	state := acc.State()
	if state.SpeechCount != 0 || state.Frames != 0 || state.InSpeech || state.Preroll != 0 {
		t.Errorf("Expected full reset, got %+v", state)
	}
	if acc.Stats().Discarded != 1 {
		t.Errorf("Expected 1 discarded run, got %d", acc.Stats().Discarded)
	}
}

func TestSpeechFollowedByPauseEmitsOnce(t *testing.T) {
	tests := []struct {
		name         string
		leadSilence  int
		speechFrames int
	}{
		{"no pre-roll", 0, 6},
		{"partial pre-roll", 4, 10},
		{"full pre-roll", 50, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, c := newTestAccumulator(t)
			cfg := acc.config

			pushN(acc, silence, tt.leadSilence)
			pushN(acc, speech, tt.speechFrames)
			pushN(acc, silence, cfg.SilenceFrames)

			if len(c.segments) != 1 {
				t.Fatalf("Expected exactly 1 segment, got %d", len(c.segments))
			}

			preroll := min(tt.leadSilence, cfg.PrerollFrames)
			wantFrames := preroll + tt.speechFrames + cfg.SilenceFrames
			seg := c.segments[0]
			if seg.Frames != wantFrames {
				t.Errorf("Expected %d frames, got %d", wantFrames, seg.Frames)
			}
			if len(seg.Samples) != wantFrames*audio.FrameSamples {
				t.Errorf("Expected %d samples, got %d", wantFrames*audio.FrameSamples, len(seg.Samples))
			}
			if seg.Source != audio.SourceMic {
				t.Errorf("Expected mic source, got %s", seg.Source)
			}

			// More silence after the flush must not emit again.
			pushN(acc, silence, 100)
			if len(c.segments) != 1 {
				t.Errorf("Expected no further segments, got %d", len(c.segments))
			}
		})
	}
}

func TestPauseInsideUtteranceIsKept(t *testing.T) {
	acc, c := newTestAccumulator(t)
	cfg := acc.config

	pushN(acc, speech, 8)
	pushN(acc, silence, cfg.SilenceFrames-1)
	pushN(acc, speech, 8)
	pushN(acc, silence, cfg.SilenceFrames)

	if len(c.segments) != 1 {
		t.Fatalf("Expected 1 segment spanning the pause, got %d", len(c.segments))
	}
	want := 8 + cfg.SilenceFrames - 1 + 8 + cfg.SilenceFrames
	if c.segments[0].Frames != want {
		t.Errorf("Expected %d frames, got %d", want, c.segments[0].Frames)
	}
}

func TestMaxLengthSafetyNet(t *testing.T) {
	acc, c := newTestAccumulator(t)
	cfg := acc.config

	pushN(acc, speech, cfg.MaxFrames-1)
	if len(c.segments) != 0 {
		t.Fatalf("Unexpected flush before cap")
	}

	// Uninterrupted speech flushes on reaching the cap with no trailing silence.
	acc.Push(speech)
	if len(c.segments) != 1 {
		t.Fatalf("Expected safety-net flush, got %d segments", len(c.segments))
	}
	if c.segments[0].Frames != cfg.MaxFrames {
		t.Errorf("Expected %d frames, got %d", cfg.MaxFrames, c.segments[0].Frames)
	}
	if acc.State().TotalFrames != 0 || acc.State().InSpeech {
		t.Error("Expected reset after safety-net flush")
	}

	// Continuous speech keeps producing capped segments.
	pushN(acc, speech, cfg.MaxFrames*2)
	if len(c.segments) != 3 {
		t.Errorf("Expected 3 capped segments, got %d", len(c.segments))
	}
}

func TestMaxLengthWithSparsePauses(t *testing.T) {
	acc, c := newTestAccumulator(t)
	cfg := acc.config

	// Alternate speech and short pauses that never reach the silence threshold.
	for len(c.segments) == 0 && acc.State().TotalFrames < cfg.MaxFrames*2 {
		pushN(acc, speech, 5)
		pushN(acc, silence, 5)
	}

	if len(c.segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(c.segments))
	}
	if c.segments[0].Frames > cfg.MaxFrames {
		t.Errorf("Segment exceeded cap: %d frames", c.segments[0].Frames)
	}
}

func TestMaxLengthWithoutEnoughSpeechDiscards(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	c := &collector{}
	cfg := AccumulatorConfig{SilenceFrames: 50, MinSpeechFrames: 10, MaxFrames: 20, PrerollFrames: 2}
	acc := NewAccumulator(audio.SourceLoopback, cfg, NewClassifier(testThreshold), c.sink, logger)

	acc.Push(speech)
	pushN(acc, silence, 19)

	if len(c.segments) != 0 {
		t.Fatalf("Expected discard, got %d segments", len(c.segments))
	}
	if acc.State().TotalFrames != 0 {
		t.Error("Expected reset after discard")
	}
}

func TestPrerollEvictsOldest(t *testing.T) {
	r := newPrerollRing(3)
	for i := 1; i <= 5; i++ {
		r.push(constantFrame(float32(i) / 10))
	}

	if r.len() != r.capacity() {
		t.Fatalf("Expected full ring of %d, got %d", r.capacity(), r.len())
	}

	frames := r.frames()
	want := []float32{0.3, 0.4, 0.5}
	for i, f := range frames {
		if f[0] != want[i] {
			t.Errorf("Position %d: expected %f, got %f", i, want[i], f[0])
		}
	}

	if got := r.drain(); len(got) != 3 || r.len() != 0 {
		t.Errorf("Drain should empty the ring, got %d left", r.len())
	}
}

func TestPrerollOrderInSegment(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	c := &collector{}
	cfg := AccumulatorConfig{SilenceFrames: 2, MinSpeechFrames: 1, MaxFrames: 100, PrerollFrames: 2}
	acc := NewAccumulator(audio.SourceMic, cfg, NewClassifier(0.5), c.sink, logger)

	// Below-threshold frames with distinct values fill the pre-roll.
	acc.Push(constantFrame(0.1))
	acc.Push(constantFrame(0.2))
	acc.Push(constantFrame(0.3))
	acc.Push(constantFrame(0.9))
	pushN(acc, silence, 2)

	if len(c.segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(c.segments))
	}
	samples := c.segments[0].Samples
	n := audio.FrameSamples
	if samples[0] != 0.2 || samples[n] != 0.3 || samples[2*n] != 0.9 {
		t.Errorf("Pre-roll not merged oldest first: %f %f %f", samples[0], samples[n], samples[2*n])
	}
}

func TestInvariantPrerollEmptyWhileInSpeech(t *testing.T) {
	acc, _ := newTestAccumulator(t)

	pushN(acc, silence, 5)
	acc.Push(speech)

	state := acc.State()
	if !state.InSpeech || state.Preroll != 0 || state.Frames != 6 {
		t.Errorf("Unexpected state after onset: %+v", state)
	}
}

func TestSinkPanicIsContained(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 4}))
	cfg := DefaultAccumulatorConfig()
	acc := NewAccumulator(audio.SourceMic, cfg, NewClassifier(testThreshold), func(audio.Segment) {
		panic("sink failure")
	}, logger)

	pushN(acc, speech, cfg.MinSpeechFrames)
	pushN(acc, silence, cfg.SilenceFrames)

	if acc.Stats().SegmentsEmitted != 1 {
		t.Errorf("Expected the segment to count as emitted")
	}
	if acc.State().InSpeech {
		t.Error("Expected reset after panicking sink")
	}
}

func TestPushSamples(t *testing.T) {
	acc, _ := newTestAccumulator(t)

	samples := make([]float32, audio.FrameSamples*3+audio.FrameSamples/2-1)
	acc.PushSamples(samples)

	if got := acc.Stats().FramesProcessed; got != 3 {
		t.Errorf("Expected 3 frames processed, got %d", got)
	}
}
