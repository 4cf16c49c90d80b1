// Package server implements the HTTP API: health and statistics, the
// transcript buffer, device and threshold control, Prometheus metrics and
// a WebSocket feed of pipeline events.
package server
