package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
	"github.com/Marabunta159/VoiceCoach/internal/capture"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

func constantFrame(v float32) audio.Frame {
	f := make(audio.Frame, audio.FrameSamples)
	for i := range f {
		f[i] = v
	}
	return f
}

// fakeSource opens fakeStreams and records open/close events in order.
type fakeSource struct {
	mu      sync.Mutex
	events  []string
	frames  map[string][]audio.Frame
	failOn  map[string]bool
	streams map[string]*fakeStream
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		frames:  make(map[string][]audio.Frame),
		failOn:  make(map[string]bool),
		streams: make(map[string]*fakeStream),
	}
}

func (s *fakeSource) record(event string) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *fakeSource) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *fakeSource) Devices() ([]capture.Device, error) {
	return nil, nil
}

func (s *fakeSource) Open(ctx context.Context, dev capture.Device) (capture.Stream, error) {
	s.mu.Lock()
	fail := s.failOn[dev.ID]
	frames := s.frames[dev.ID]
	s.mu.Unlock()

	if fail {
		s.record("fail:" + dev.ID)
		return nil, errors.New("device busy")
	}
	s.record("open:" + dev.ID)

	st := &fakeStream{id: dev.ID, source: s, frames: frames}
	s.mu.Lock()
	s.streams[dev.ID] = st
	s.mu.Unlock()
	return st, nil
}

// fakeStream yields its frames, then err when set, then silence.
type fakeStream struct {
	id     string
	source *fakeSource
	frames []audio.Frame
	pos    int
	err    error

	mu     sync.Mutex
	closed bool
}

func (s *fakeStream) ReadFrame(ctx context.Context) (audio.Frame, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, capture.ErrStreamClosed
	}

	if s.pos < len(s.frames) {
		f := s.frames[s.pos]
		s.pos++
		return f, nil
	}
	if s.err != nil {
		return nil, s.err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
		return constantFrame(0), nil
	}
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream %s closed twice", s.id)
	}
	s.closed = true
	s.source.record("close:" + s.id)
	return nil
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
