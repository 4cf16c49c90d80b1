// Package alert plays the silence escalation cues: a rising ping through
// the speakers and an optional desktop notification. Cues run on a small
// player pool so the monitor never waits for playback.
package alert
