// Package dispatch combines the segments of both capture streams, gates out
// residual silence, sends what remains for transcription and keeps the
// rolling transcript.
package dispatch
