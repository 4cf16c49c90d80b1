package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
	"github.com/Marabunta159/VoiceCoach/internal/capture"
	"github.com/Marabunta159/VoiceCoach/internal/config"
	"github.com/Marabunta159/VoiceCoach/internal/metrics"
	"github.com/Marabunta159/VoiceCoach/internal/pipeline"
)

const defaultTranscriptLines = 20

// HTTPServer provides HTTP API endpoints for monitoring and control
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	config   *config.Config
	pipeline *pipeline.Pipeline
	sources  pipeline.Sources
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	startTime time.Time
}

// NewHTTPServer creates the API server. gatherer backs /metrics; nil uses
// the default Prometheus registry.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	p *pipeline.Pipeline, sources pipeline.Sources, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:    logger.With(slog.String("component", "http")),
		config:    appConfig,
		pipeline:  p,
		sources:   sources,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// Handler returns the route multiplexer
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("GET /stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("GET /config", h.withMetrics("/config", h.handleConfig))

	mux.HandleFunc("GET /transcript", h.withMetrics("/transcript", h.handleTranscript))
	mux.HandleFunc("DELETE /transcript", h.withMetrics("/transcript", h.handleClearTranscript))

	mux.HandleFunc("GET /devices/{source}", h.withMetrics("/devices/{source}", h.handleListDevices))
	mux.HandleFunc("PUT /devices/{source}", h.withMetrics("/devices/{source}", h.handleSelectDevice))
	mux.HandleFunc("GET /thresholds", h.withMetrics("/thresholds", h.handleGetThresholds))
	mux.HandleFunc("PUT /thresholds", h.withMetrics("/thresholds", h.handleSetThresholds))

	// Long-lived; not wrapped with request metrics
	mux.HandleFunc("GET /events", h.handleEvents)

	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /{$}", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.pipeline.Stats()

	status := "healthy"
	if !stats.Running {
		status = "stopped"
	}

	health := map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
		"service": map[string]any{
			"name":    "voicecoach",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"mic": map[string]any{
				"attached": stats.Mic.Attached,
				"device":   stats.Mic.Device,
			},
			"loopback": map[string]any{
				"attached": stats.Loopback.Attached,
				"device":   stats.Loopback.Device,
			},
			"monitor": map[string]any{
				"attached": stats.Monitor.Attached,
			},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Stats())
}

// handleConfig returns the configuration with secrets masked
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config.Masked())
}

type transcriptLine struct {
	Text   string       `json:"text"`
	Source audio.Source `json:"source"`
	At     time.Time    `json:"at"`
}

// handleTranscript returns the newest ?n= lines, oldest first
func (h *HTTPServer) handleTranscript(w http.ResponseWriter, r *http.Request) {
	n := defaultTranscriptLines
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "n must be an integer")
			return
		}
		n = parsed
	}

	lines := h.pipeline.LastLines(n)
	out := make([]transcriptLine, len(lines))
	for i, l := range lines {
		out[i] = transcriptLine{Text: l.Text, Source: l.Source, At: l.At}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(out),
		"lines": out,
	})
}

func (h *HTTPServer) handleClearTranscript(w http.ResponseWriter, r *http.Request) {
	h.pipeline.ClearBuffer()
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPServer) sourceFor(name string) (audio.Source, capture.Source, error) {
	src, err := audio.ParseSource(name)
	if err != nil {
		return 0, nil, err
	}
	switch src {
	case audio.SourceMic:
		return src, h.sources.Mic, nil
	case audio.SourceLoopback:
		return src, h.sources.Loopback, nil
	default:
		return 0, nil, fmt.Errorf("no devices for source %q", name)
	}
}

func (h *HTTPServer) handleListDevices(w http.ResponseWriter, r *http.Request) {
	_, capSource, err := h.sourceFor(r.PathValue("source"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	devices, err := capSource.Devices()
	if err != nil {
		h.logger.Error("Failed to list devices", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []capture.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

type deviceRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	None bool   `json:"none"`
}

// handleSelectDevice switches the device of one stream. The body names the
// device by id or name, or sets none to detach it.
func (h *HTTPServer) handleSelectDevice(w http.ResponseWriter, r *http.Request) {
	source, capSource, err := h.sourceFor(r.PathValue("source"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.None {
		h.pipeline.RequestDeviceChange(source, nil)
		writeJSON(w, http.StatusAccepted, map[string]any{"source": source, "device": nil})
		return
	}

	query := req.ID
	if query == "" {
		query = req.Name
	}
	if query == "" {
		writeError(w, http.StatusBadRequest, "id, name or none is required")
		return
	}

	dev, err := capture.Lookup(capSource, query)
	if err != nil {
		if errors.Is(err, capture.ErrDeviceNotFound) || errors.Is(err, capture.ErrNoDevice) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.pipeline.RequestDeviceChange(source, &dev)
	writeJSON(w, http.StatusAccepted, map[string]any{"source": source, "device": dev})
}

type thresholds struct {
	Mic      float64 `json:"mic"`
	Loopback float64 `json:"loopback"`
}

func (h *HTTPServer) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	mic, loop := h.pipeline.Thresholds()
	writeJSON(w, http.StatusOK, thresholds{Mic: mic, Loopback: loop})
}

// handleSetThresholds applies new VAD thresholds. Values outside (0, 1]
// are rejected here; the pipeline setters accept anything.
func (h *HTTPServer) handleSetThresholds(w http.ResponseWriter, r *http.Request) {
	var req thresholds
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Mic <= 0 || req.Mic > 1 || req.Loopback <= 0 || req.Loopback > 1 {
		writeError(w, http.StatusBadRequest, "thresholds must be in (0, 1]")
		return
	}

	h.pipeline.SetThresholds(req.Mic, req.Loopback)
	writeJSON(w, http.StatusOK, req)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	apiDoc := map[string]any{
		"service": "VoiceCoach",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"GET /":                 "API documentation",
			"GET /health":           "Service health check",
			"GET /stats":            "Pipeline statistics",
			"GET /config":           "Service configuration (secrets masked)",
			"GET /transcript?n=20":  "Newest transcript lines",
			"DELETE /transcript":    "Clear the transcript",
			"GET /devices/{source}": "List devices for mic or loopback",
			"PUT /devices/{source}": "Select a device: {\"id\"|\"name\"} or {\"none\":true}",
			"GET /thresholds":       "Current VAD thresholds",
			"PUT /thresholds":       "Set VAD thresholds: {\"mic\",\"loopback\"}",
			"GET /events":           "WebSocket feed of segment, silence and level events",
			"GET /metrics":          "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}
