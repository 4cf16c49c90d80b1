package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
	"github.com/Marabunta159/VoiceCoach/internal/capture"
)

type recordingObserver struct {
	mu     sync.Mutex
	frames int
	resets int
}

func (o *recordingObserver) Observe(audio.Frame, time.Time) {
	o.mu.Lock()
	o.frames++
	o.mu.Unlock()
}

func (o *recordingObserver) Reset() {
	o.mu.Lock()
	o.resets++
	o.mu.Unlock()
}

func (o *recordingObserver) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.frames, o.resets
}

func TestMonitorWorkerFeedsObserver(t *testing.T) {
	src := newFakeSource()
	obs := &recordingObserver{}
	w := NewMonitorWorker(src, obs, 5*time.Millisecond, 20*time.Millisecond, testLogger(), nil)

	w.RequestDevice(&capture.Device{ID: "mic"})
	w.Start(context.Background())
	defer w.Stop()

	if !waitFor(time.Second, func() bool { f, _ := obs.counts(); return f >= 5 }) {
		t.Fatal("Observer did not receive frames")
	}

	w.RequestDevice(nil)
	if !waitFor(time.Second, func() bool { _, r := obs.counts(); return r == 1 }) {
		t.Error("Expected observer reset on detach")
	}
	if w.State().Attached {
		t.Error("Expected monitor to be device-less")
	}
}

func TestMonitorWorkerOpenFailureResets(t *testing.T) {
	src := newFakeSource()
	src.failOn["gone"] = true
	obs := &recordingObserver{}
	w := NewMonitorWorker(src, obs, 5*time.Millisecond, 20*time.Millisecond, testLogger(), nil)

	w.Start(context.Background())
	defer w.Stop()

	w.RequestDevice(&capture.Device{ID: "gone"})
	if !waitFor(time.Second, func() bool { _, r := obs.counts(); return r == 1 }) {
		t.Error("Expected observer reset when the device cannot be opened")
	}
}
