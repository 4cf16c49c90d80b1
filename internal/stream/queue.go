package stream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
)

// Queue is a bounded FIFO of segments between a capture worker and the
// mixer. Offer never blocks; when the queue is full the new segment is
// dropped.
type Queue struct {
	ch      chan audio.Segment
	offered atomic.Uint64
	dropped atomic.Uint64
}

// NewQueue creates a queue holding at most size segments
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan audio.Segment, size)}
}

// Offer enqueues seg and reports false when it was dropped
func (q *Queue) Offer(seg audio.Segment) bool {
	q.offered.Add(1)
	select {
	case q.ch <- seg:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Poll waits up to timeout for a segment. It returns false on timeout or
// when ctx is done.
func (q *Queue) Poll(ctx context.Context, timeout time.Duration) (audio.Segment, bool) {
	select {
	case seg := <-q.ch:
		return seg, true
	default:
	}

	if timeout <= 0 {
		return audio.Segment{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case seg := <-q.ch:
		return seg, true
	case <-timer.C:
		return audio.Segment{}, false
	case <-ctx.Done():
		return audio.Segment{}, false
	}
}

// Len returns the number of queued segments
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// QueueStats holds queue counters
type QueueStats struct {
	Length  int    `json:"length"`
	Offered uint64 `json:"offered"`
	Dropped uint64 `json:"dropped"`
}

// Stats returns a snapshot of the queue counters
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Length:  q.Len(),
		Offered: q.offered.Load(),
		Dropped: q.dropped.Load(),
	}
}
