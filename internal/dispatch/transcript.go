package dispatch

import (
	"sync"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
)

// DefaultTranscriptLines is the rolling transcript capacity
const DefaultTranscriptLines = 200

// Line is one transcribed utterance
type Line struct {
	Text   string       `json:"text"`
	Source audio.Source `json:"source"`
	At     time.Time    `json:"at"`
}

// Transcript is a size-bounded rolling buffer of lines. The oldest lines
// are evicted beyond capacity.
type Transcript struct {
	mu       sync.Mutex
	lines    []Line
	capacity int
}

// NewTranscript creates a transcript holding at most capacity lines
func NewTranscript(capacity int) *Transcript {
	if capacity < 1 {
		capacity = DefaultTranscriptLines
	}
	return &Transcript{capacity: capacity}
}

// Append adds a line and returns the new length
func (t *Transcript) Append(line Line) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lines = append(t.lines, line)
	if over := len(t.lines) - t.capacity; over > 0 {
		// Shift into a fresh slice so evicted lines can be collected.
		kept := make([]Line, t.capacity, t.capacity+1)
		copy(kept, t.lines[over:])
		t.lines = kept
	}
	return len(t.lines)
}

// LastLines returns up to n newest lines, oldest first
func (t *Transcript) LastLines(n int) []Line {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n <= 0 {
		return nil
	}
	start := max(len(t.lines)-n, 0)
	out := make([]Line, len(t.lines)-start)
	copy(out, t.lines[start:])
	return out
}

// LastN returns the text of up to n newest lines, oldest first
func (t *Transcript) LastN(n int) []string {
	lines := t.LastLines(n)
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

// Clear removes every line
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = nil
}

// Len returns the number of lines held
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lines)
}

// Capacity returns the maximum number of lines held
func (t *Transcript) Capacity() int {
	return t.capacity
}
