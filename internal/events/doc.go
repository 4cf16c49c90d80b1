// Package events provides a small typed observer list used to publish
// transcript segments, silence levels and speaker levels.
package events
