package alert

import (
	"math"
	"time"
)

// PingConfig describes the escalation ping
type PingConfig struct {
	BaseHz     float64       // Pitch at level 1
	StepHz     float64       // Added per level above 1
	Duration   time.Duration // Length of one ping
	Gap        time.Duration // Pause after each ping
	Volume     float64
	SampleRate int
}

// DefaultPingConfig returns the standard ping
func DefaultPingConfig() PingConfig {
	return PingConfig{
		BaseHz:     880,
		StepHz:     120,
		Duration:   300 * time.Millisecond,
		Gap:        150 * time.Millisecond,
		Volume:     0.4,
		SampleRate: 44100,
	}
}

// Frequency returns the ping pitch for a level
func (c PingConfig) Frequency(level int) float64 {
	return c.BaseHz + float64(level-1)*c.StepHz
}

// Tone renders one ping for level: a sine with a linear fade over the
// first and last 10% of its samples.
func (c PingConfig) Tone(level int) []float64 {
	n := int(float64(c.SampleRate) * c.Duration.Seconds())
	if n <= 0 {
		return nil
	}
	freq := c.Frequency(level)
	fade := n / 10

	out := make([]float64, n)
	for i := range out {
		env := 1.0
		switch {
		case fade > 1 && i < fade:
			env = float64(i) / float64(fade-1)
		case fade > 1 && i >= n-fade:
			env = float64(n-1-i) / float64(fade-1)
		}
		t := float64(i) / float64(c.SampleRate)
		out[i] = math.Sin(2*math.Pi*freq*t) * env * c.Volume
	}
	return out
}
