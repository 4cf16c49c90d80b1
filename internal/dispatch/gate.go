package dispatch

import "github.com/Marabunta159/VoiceCoach/internal/audio"

const (
	DefaultGateMinRMS  = 0.002
	DefaultGateMinPeak = 0.005
)

// Gate is the last speech-presence check before transcription. It is
// independent of the per-frame VAD threshold.
type Gate struct {
	MinRMS  float64
	MinPeak float64
}

// DefaultGate returns the gate with the standard floors
func DefaultGate() Gate {
	return Gate{MinRMS: DefaultGateMinRMS, MinPeak: DefaultGateMinPeak}
}

// HasSpeech reports whether samples reach both the RMS and the peak floor
func (g Gate) HasSpeech(samples []float32) bool {
	if len(samples) == 0 {
		return false
	}
	return audio.RMS(samples) >= g.MinRMS && audio.Peak(samples) >= g.MinPeak
}
