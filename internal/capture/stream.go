package capture

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
)

// framedStream adapts a callback-driven device to the Stream interface.
// The device callback calls deliver; frames that do not fit the buffer are
// dropped so the callback never blocks.
type framedStream struct {
	frames  chan audio.Frame
	done    chan struct{}
	framer  *audio.Framer
	release func() error

	ended     chan struct{}
	endOnce   sync.Once
	closeOnce sync.Once
	closeErr  error
	dropped   atomic.Uint64
}

func newFramedStream(channels, sampleRate, buffer int, release func() error) *framedStream {
	if buffer < 1 {
		buffer = 1
	}
	return &framedStream{
		frames:  make(chan audio.Frame, buffer),
		done:    make(chan struct{}),
		ended:   make(chan struct{}),
		framer:  audio.NewFramer(channels, sampleRate),
		release: release,
	}
}

// deliver is called from the device callback goroutine only.
func (s *framedStream) deliver(interleaved []float32) {
	select {
	case <-s.done:
		return
	default:
	}

	for _, f := range s.framer.Write(interleaved) {
		select {
		case s.frames <- f:
		default:
			s.dropped.Add(1)
		}
	}
}

// finish marks the end of input; buffered frames are still returned.
func (s *framedStream) finish() {
	s.endOnce.Do(func() { close(s.ended) })
}

func (s *framedStream) ReadFrame(ctx context.Context) (audio.Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrStreamClosed
	case <-s.ended:
		return nil, io.EOF
	case f := <-s.frames:
		return f, nil
	}
}

func (s *framedStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.release != nil {
			s.closeErr = s.release()
		}
	})
	return s.closeErr
}

// Dropped returns the number of frames lost because the reader fell behind
func (s *framedStream) Dropped() uint64 {
	return s.dropped.Load()
}
