package vad

import (
	"math"
	"sync/atomic"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
)

// Classifier decides speech/silence per frame by RMS energy
type Classifier struct {
	threshold atomic.Uint64 // float64 bits
}

// NewClassifier creates a classifier with the given RMS threshold
func NewClassifier(threshold float64) *Classifier {
	c := &Classifier{}
	c.SetThreshold(threshold)
	return c
}

// Classify reports whether the frame's RMS is at or above the threshold.
func (c *Classifier) Classify(frame audio.Frame) bool {
	return audio.RMS(frame) >= c.Threshold()
}

// SetThreshold replaces the threshold. Safe to call from any goroutine;
// the value is not range-checked.
func (c *Classifier) SetThreshold(threshold float64) {
	c.threshold.Store(math.Float64bits(threshold))
}

// Threshold returns the current RMS threshold
func (c *Classifier) Threshold() float64 {
	return math.Float64frombits(c.threshold.Load())
}
