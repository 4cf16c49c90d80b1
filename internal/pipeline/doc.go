// Package pipeline assembles the capture workers, the mixer, the silence
// monitor and the speaker meter into one service with observer callbacks
// for transcript lines, silence levels and speaker levels.
package pipeline
