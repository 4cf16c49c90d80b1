// Command mockstt is a local stand-in for a Whisper-compatible
// transcription endpoint. It decodes the uploaded WAV and answers with a
// verbose_json body describing it.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
	"github.com/Marabunta159/VoiceCoach/internal/transcription"
)

const maxUpload = 10 << 20

type handler struct {
	logger *slog.Logger
	delay  time.Duration
	text   string
}

func (h *handler) transcribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	samples, channels, rate, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		http.Error(w, "Invalid WAV payload", http.StatusUnprocessableEntity)
		return
	}

	duration := float64(len(samples)) / float64(channels*rate)
	rms := audio.RMS(samples)

	h.logger.Info("Transcription request received",
		slog.String("request_id", r.FormValue("request_id")),
		slog.String("filename", header.Filename),
		slog.Int("bytes", len(data)),
		slog.Int("sample_rate", rate),
		slog.Int("channels", channels),
		slog.Float64("duration_seconds", duration),
		slog.Float64("rms", rms),
		slog.String("language", r.FormValue("language")),
		slog.String("model", r.FormValue("model")),
	)

	if h.delay > 0 {
		time.Sleep(h.delay)
	}

	resp := transcription.Response{
		Text:     h.text,
		Language: r.FormValue("language"),
		Duration: duration,
		Segments: []transcription.ResponseSegment{
			{Start: 0, End: duration, Text: fmt.Sprintf(" %s (%.2fs, rms %.4f) ", h.text, duration, rms)},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func newMux(h *handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/audio/transcriptions", h.transcribe)
	mux.HandleFunc("POST /transcribe", h.transcribe)
	return mux
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "Listen address")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time")
	text := flag.String("text", "test transcription", "Text returned for every request")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	h := &handler{logger: logger, delay: *delay, text: *text}

	logger.Info("Mock transcription server starting",
		slog.String("endpoint", fmt.Sprintf("http://%s/v1/audio/transcriptions", *addr)),
	)
	if err := http.ListenAndServe(*addr, newMux(h)); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
