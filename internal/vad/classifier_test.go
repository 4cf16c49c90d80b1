package vad

import (
	"sync"
	"testing"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
)

func constantFrame(v float32) audio.Frame {
	f := make(audio.Frame, audio.FrameSamples)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestClassifierBoundary(t *testing.T) {
	// A constant frame has RMS equal to its absolute value.
	tests := []struct {
		name      string
		level     float32
		threshold float64
		want      bool
	}{
		{"silence", 0, 0.008, false},
		{"just below", 0.0079, 0.008, false},
		{"at threshold", 0.5, 0.5, true},
		{"above", 0.02, 0.008, true},
		{"negative samples", -0.02, 0.008, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(tt.threshold)
			if got := c.Classify(constantFrame(tt.level)); got != tt.want {
				t.Errorf("Classify(level=%f, threshold=%f) = %v, want %v",
					tt.level, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestClassifierEmptyFrame(t *testing.T) {
	if NewClassifier(0.001).Classify(nil) {
		t.Error("Empty frame should be silence")
	}
}

func TestClassifierSetThreshold(t *testing.T) {
	c := NewClassifier(0.008)
	frame := constantFrame(0.005)

	if c.Classify(frame) {
		t.Fatal("Expected silence before threshold update")
	}

	c.SetThreshold(0.008 * 0.3)
	if !c.Classify(frame) {
		t.Error("Expected speech after lowering the threshold")
	}
	if c.Threshold() != 0.008*0.3 {
		t.Errorf("Threshold not stored, got %f", c.Threshold())
	}
}

func TestClassifierConcurrentUpdate(t *testing.T) {
	c := NewClassifier(0.01)
	frame := constantFrame(0.02)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.SetThreshold(float64(i%3) * 0.01)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.Classify(frame)
		}
	}()
	wg.Wait()
}
