// Package stream runs the capture workers. Each worker owns one device
// stream on its own goroutine, applies device change requests between
// frames, segments speech with a VAD accumulator and hands finished
// segments to a bounded drop-when-full queue.
package stream
