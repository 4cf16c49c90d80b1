// Package vad provides energy-based voice activity detection and the
// per-stream segment accumulator. Frames are classified by RMS against an
// atomically updatable threshold; the accumulator keeps a pre-roll of
// trailing silence, collects speech into segments and flushes them on a
// sufficient pause or when the safety-net maximum length is reached.
package vad
