package monitor

import (
	"math"
	"testing"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
)

func newTestMeter() (*LevelMeter, *fakeClock) {
	clock := newFakeClock()
	m := NewLevelMeter(DefaultMeterConfig())
	m.SetClock(clock.Now)
	return m, clock
}

func TestLevelMeterPushFindsLoudestWindow(t *testing.T) {
	m, _ := newTestMeter()

	// One second of silence with a single loud 50ms window.
	samples := make([]float32, audio.SampleRate)
	for i := 8000; i < 8800; i++ {
		samples[i] = 0.5
	}
	m.Push(samples, audio.SampleRate)

	if got := m.Level(); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("Expected peak window RMS 0.5, got %f", got)
	}
}

func TestLevelMeterPushOnlyRaises(t *testing.T) {
	m, _ := newTestMeter()

	m.Push(constantFrame(0.4), audio.SampleRate)
	m.Push(constantFrame(0.1), audio.SampleRate)

	if got := m.Level(); math.Abs(got-0.4) > 1e-6 {
		t.Errorf("Quieter push must not lower the peak, got %f", got)
	}

	m.Push(constantFrame(0.6), audio.SampleRate)
	if got := m.Level(); math.Abs(got-0.6) > 1e-6 {
		t.Errorf("Louder push must raise the peak, got %f", got)
	}
}

func TestLevelMeterGracePeriod(t *testing.T) {
	m, clock := newTestMeter()

	m.Push(constantFrame(0.5), audio.SampleRate)
	clock.Advance(200 * time.Millisecond)

	if got := m.Decay(); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("Expected no decay within grace, got %f", got)
	}

	clock.Advance(time.Millisecond)
	if got := m.Decay(); math.Abs(got-0.5*0.88) > 1e-6 {
		t.Errorf("Expected one decay step after grace, got %f", got)
	}
}

func TestLevelMeterDecaysToExactlyZero(t *testing.T) {
	m, clock := newTestMeter()

	m.Push(constantFrame(0.5), audio.SampleRate)
	clock.Advance(time.Second)

	prev := m.Level()
	steps := 0
	for m.Level() > 0 {
		clock.Advance(60 * time.Millisecond)
		got := m.Decay()
		if got > prev {
			t.Fatalf("Decay must be monotonic: %f after %f", got, prev)
		}
		prev = got
		steps++
		if steps > 1000 {
			t.Fatal("Meter never reached zero")
		}
	}

	if m.Level() != 0 {
		t.Errorf("Expected exact zero, got %g", m.Level())
	}
	// 0.5 * 0.88^n < 1e-4 first holds at n = 67.
	if steps != 67 {
		t.Errorf("Expected 67 decay steps, got %d", steps)
	}
}

func TestLevelMeterReset(t *testing.T) {
	m, _ := newTestMeter()
	m.Push(constantFrame(0.3), audio.SampleRate)
	m.Reset()

	if m.Level() != 0 {
		t.Errorf("Expected 0 after reset, got %f", m.Level())
	}
}

func TestLevelMeterWindowAtOtherRate(t *testing.T) {
	m, _ := newTestMeter()

	// At 48 kHz a 50ms window is 2400 samples.
	samples := make([]float32, 4800)
	for i := 2400; i < 4800; i++ {
		samples[i] = 0.2
	}
	m.Push(samples, 48000)

	if got := m.Level(); math.Abs(got-0.2) > 1e-6 {
		t.Errorf("Expected 0.2, got %f", got)
	}
}
