package vad

import "github.com/Marabunta159/VoiceCoach/internal/audio"

// prerollRing is a fixed-capacity FIFO of the most recent silence frames.
type prerollRing struct {
	buf   []audio.Frame
	head  int
	count int
}

func newPrerollRing(capacity int) *prerollRing {
	if capacity < 0 {
		capacity = 0
	}
	return &prerollRing{buf: make([]audio.Frame, capacity)}
}

// push appends a frame, evicting the oldest one when full.
func (r *prerollRing) push(frame audio.Frame) {
	if len(r.buf) == 0 {
		return
	}
	tail := (r.head + r.count) % len(r.buf)
	r.buf[tail] = frame
	if r.count < len(r.buf) {
		r.count++
		return
	}
	r.head = (r.head + 1) % len(r.buf)
}

// frames returns the buffered frames oldest first without clearing them.
func (r *prerollRing) frames() []audio.Frame {
	out := make([]audio.Frame, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

// drain returns the buffered frames oldest first and empties the ring.
func (r *prerollRing) drain() []audio.Frame {
	out := r.frames()
	r.clear()
	return out
}

func (r *prerollRing) clear() {
	for i := range r.buf {
		r.buf[i] = nil
	}
	r.head = 0
	r.count = 0
}

func (r *prerollRing) len() int {
	return r.count
}

func (r *prerollRing) capacity() int {
	return len(r.buf)
}
