package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/metrics"
)

// Transcriber turns 16 kHz mono samples into text fragments. Fragments may
// carry surrounding whitespace and may be empty.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) ([]string, error)
}

// Options are the per-request parameters, fixed at construction
type Options struct {
	Language    string
	Model       string
	Prompt      string
	Temperature float32
	BeamSize    int
}

// Config contains transcription backend configuration
type Config struct {
	Provider      string // "http" or "openai"
	Endpoint      string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	RetryBackoff  time.Duration // First retry delay, doubled per attempt
	SampleRate    int
	Options       Options
}

const (
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
)

// Stats represents backend statistics
type Stats struct {
	Provider        string        `json:"provider"`
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// Backend is a Transcriber that reports statistics and can be closed
type Backend interface {
	Transcriber
	Stats() Stats
	Close() error
}

// NewBackend creates the backend selected by config.Provider
func NewBackend(config Config, logger *slog.Logger, m *metrics.Metrics) (Backend, error) {
	switch config.Provider {
	case "", ProviderHTTP:
		return NewHTTPBackend(config, logger, m)
	case ProviderOpenAI:
		return NewOpenAIBackend(config, logger, m)
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", config.Provider)
	}
}

func applyDefaults(config *Config) {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
}
