package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
)

// FileSource replays WAV files as capture devices. The device ID is the
// file path. When Realtime is set, frames are paced at the frame duration.
type FileSource struct {
	Paths    []string
	Realtime bool
}

// Devices lists the configured files
func (s *FileSource) Devices() ([]Device, error) {
	result := make([]Device, 0, len(s.Paths))
	for _, p := range s.Paths {
		result = append(result, Device{
			ID:   p,
			Name: filepath.Base(p),
			Kind: KindFile,
		})
	}
	return result, nil
}

// Open decodes the whole file up front and replays it frame by frame
func (s *FileSource) Open(ctx context.Context, dev Device) (Stream, error) {
	f, err := os.Open(dev.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dev.ID, err)
	}
	defer f.Close()

	samples, channels, rate, err := audio.DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", dev.ID, err)
	}

	framer := audio.NewFramer(channels, rate)
	frames := framer.Write(samples)
	if tail, ok := framer.Flush(); ok {
		frames = append(frames, tail)
	}
	return NewFrameStream(frames, s.Realtime), nil
}

// frameStream replays a fixed list of frames
type frameStream struct {
	frames   []audio.Frame
	pos      int
	realtime bool
	next     time.Time
	closed   bool
}

// NewFrameStream returns a Stream that yields frames in order and then io.EOF.
func NewFrameStream(frames []audio.Frame, realtime bool) Stream {
	return &frameStream{frames: frames, realtime: realtime}
}

func (s *frameStream) ReadFrame(ctx context.Context) (audio.Frame, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}

	if s.realtime {
		now := time.Now()
		if s.next.IsZero() {
			s.next = now
		}
		if wait := s.next.Sub(now); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		s.next = s.next.Add(audio.FrameDuration)
	}

	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *frameStream) Close() error {
	s.closed = true
	return nil
}

// Router dispatches Open to the source registered for the device kind, so
// file replay can stand in for a live device.
type Router struct {
	Default Source
	Sources map[Kind]Source
}

// Devices lists the devices of the default source followed by the others
func (r *Router) Devices() ([]Device, error) {
	var result []Device
	if r.Default != nil {
		devs, err := r.Default.Devices()
		if err != nil {
			return nil, err
		}
		result = append(result, devs...)
	}
	for _, src := range r.Sources {
		devs, err := src.Devices()
		if err != nil {
			return nil, err
		}
		result = append(result, devs...)
	}
	return result, nil
}

func (r *Router) Open(ctx context.Context, dev Device) (Stream, error) {
	if src, ok := r.Sources[dev.Kind]; ok {
		return src.Open(ctx, dev)
	}
	if r.Default == nil {
		return nil, fmt.Errorf("no source for device kind %q", dev.Kind)
	}
	return r.Default.Open(ctx, dev)
}
