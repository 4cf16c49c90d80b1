package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Marabunta159/VoiceCoach/internal/events"
)

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API binds to localhost by default
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventMessage is one frame of the /events feed
type eventMessage struct {
	Type    string          `json:"type"` // segment, silence or level
	Segment *events.Segment `json:"segment,omitempty"`
	Silence *events.Silence `json:"silence,omitempty"`
	Level   *events.Level   `json:"level,omitempty"`
}

// handleEvents streams pipeline events to a WebSocket client. A slow
// client loses events instead of stalling the publishers.
func (h *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	out := make(chan eventMessage, eventBuffer)
	send := func(msg eventMessage) {
		select {
		case out <- msg:
		default:
		}
	}

	unsubs := []func(){
		h.pipeline.Segments().Subscribe(func(s events.Segment) {
			send(eventMessage{Type: "segment", Segment: &s})
		}),
		h.pipeline.Silences().Subscribe(func(s events.Silence) {
			send(eventMessage{Type: "silence", Silence: &s})
		}),
		h.pipeline.Levels().Subscribe(func(l events.Level) {
			send(eventMessage{Type: "level", Level: &l})
		}),
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	h.logger.Info("Event client connected", slog.String("remote", r.RemoteAddr))

	// The read loop only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			h.logger.Info("Event client disconnected", slog.String("remote", r.RemoteAddr))
			return
		case <-r.Context().Done():
			return
		case msg := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("Event write failed", slog.String("error", err.Error()))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
