package events

import (
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
)

// Segment is a transcribed utterance
type Segment struct {
	Text   string       `json:"text"`
	Source audio.Source `json:"source"`
	At     time.Time    `json:"at"`
}

// Silence reports a change of the silence escalation level
type Silence struct {
	Level          int     `json:"level"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Level is one speaker level-meter reading
type Level struct {
	Value float64 `json:"value"`
}
