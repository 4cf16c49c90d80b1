// Package monitor implements the two level watchers: the microphone
// silence escalation state machine and the peak-hold speaker level meter.
package monitor
