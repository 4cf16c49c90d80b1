package audio

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	// SampleRate is the rate every frame is delivered at after resampling.
	SampleRate = 16000

	// FrameDuration is the length of one VAD frame.
	FrameDuration = 30 * time.Millisecond

	// FrameSamples is the number of samples in one frame (480 at 16 kHz).
	FrameSamples = SampleRate * int(FrameDuration/time.Millisecond) / 1000
)

// Source identifies which capture stream a segment came from
type Source uint8

const (
	SourceMic Source = iota
	SourceLoopback
	SourceMixed
)

// String returns the wire name of the source
func (s Source) String() string {
	switch s {
	case SourceMic:
		return "mic"
	case SourceLoopback:
		return "loopback"
	case SourceMixed:
		return "mixed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseSource maps a wire name back to a Source
func ParseSource(name string) (Source, error) {
	switch name {
	case "mic":
		return SourceMic, nil
	case "loopback":
		return SourceLoopback, nil
	case "mixed":
		return SourceMixed, nil
	default:
		return 0, fmt.Errorf("unknown source %q", name)
	}
}

// Frame is one fixed-length window of mono samples normalized to [-1, 1].
type Frame []float32

// Segment is a completed utterance ready for dispatch. It is never mutated
// after the accumulator emits it.
type Segment struct {
	ID         string
	Source     Source
	Samples    []float32
	Frames     int
	SampleRate int
	CreatedAt  time.Time
}

// NewSegment concatenates frames into a segment tagged with source
func NewSegment(source Source, frames []Frame) Segment {
	total := 0
	for _, f := range frames {
		total += len(f)
	}
	samples := make([]float32, 0, total)
	for _, f := range frames {
		samples = append(samples, f...)
	}

	return Segment{
		ID:         uuid.NewString(),
		Source:     source,
		Samples:    samples,
		Frames:     len(frames),
		SampleRate: SampleRate,
		CreatedAt:  time.Now(),
	}
}

// Duration returns the playback length of the segment
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// RMS returns the root-mean-square energy of samples, 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the largest absolute sample value
func Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		v := math.Abs(float64(s))
		if v > peak {
			peak = v
		}
	}
	return peak
}

// Mix truncates a and b to the shorter length and averages them sample-wise.
// No time alignment is attempted.
func Mix(a, b []float32) []float32 {
	n := min(len(a), len(b))
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = (a[i] + b[i]) * 0.5
	}
	return out
}
