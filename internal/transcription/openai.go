package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
	"github.com/Marabunta159/VoiceCoach/internal/metrics"
)

// OpenAIBackend transcribes through the OpenAI audio transcription API
// or any server speaking the same protocol.
type OpenAIBackend struct {
	config    Config
	client    *openai.Client
	semaphore chan struct{}
	retry     *retrier
	stats     *counters
	logger    *slog.Logger
}

// NewOpenAIBackend creates a Whisper API client. Endpoint, when set,
// replaces the default base URL.
func NewOpenAIBackend(config Config, logger *slog.Logger, m *metrics.Metrics) (*OpenAIBackend, error) {
	if config.APIKey == "" && config.Endpoint == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}
	applyDefaults(&config)
	if config.Options.Model == "" {
		config.Options.Model = openai.Whisper1
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.Endpoint != "" {
		clientConfig.BaseURL = config.Endpoint
	}
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	stats := &counters{}
	return &OpenAIBackend{
		config:    config,
		client:    openai.NewClientWithConfig(clientConfig),
		semaphore: make(chan struct{}, config.MaxConcurrent),
		stats:     stats,
		logger:    logger.With(slog.String("backend", ProviderOpenAI)),
		retry: &retrier{
			maxRetries: config.MaxRetries,
			backoff:    config.RetryBackoff,
			stats:      stats,
			metrics:    m,
			retryable:  isRetryableOpenAIError,
		},
	}, nil
}

// Transcribe uploads the segment and returns the verbose JSON segments
func (c *OpenAIBackend) Transcribe(ctx context.Context, samples []float32) ([]string, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	wav, err := audio.EncodeWAV(samples, c.config.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode segment: %w", err)
	}

	startTime := time.Now()
	c.stats.incrementTotalRequests()

	var resp openai.AudioResponse
	err = c.retry.do(ctx, func(ctx context.Context) error {
		opts := c.config.Options
		r, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:       opts.Model,
			FilePath:    "segment.wav",
			Reader:      bytes.NewReader(wav),
			Prompt:      opts.Prompt,
			Temperature: opts.Temperature,
			Language:    opts.Language,
			Format:      openai.AudioResponseFormatVerboseJSON,
		})
		if err != nil {
			c.logger.Debug("Transcription attempt failed", slog.String("error", err.Error()))
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		c.stats.incrementFailedRequests()
		return nil, err
	}

	c.stats.recordSuccess(time.Since(startTime))

	if len(resp.Segments) == 0 {
		if resp.Text == "" {
			return nil, nil
		}
		return []string{resp.Text}, nil
	}
	out := make([]string, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		out = append(out, s.Text)
	}
	return out, nil
}

func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == 429
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == 429
	}
	return isRetryableError(err)
}

// Stats returns current client statistics
func (c *OpenAIBackend) Stats() Stats {
	return c.stats.snapshot(ProviderOpenAI, len(c.semaphore))
}

// Close waits for in-flight requests to complete
func (c *OpenAIBackend) Close() error {
	for i := 0; i < cap(c.semaphore); i++ {
		c.semaphore <- struct{}{}
	}
	for i := 0; i < cap(c.semaphore); i++ {
		<-c.semaphore
	}
	return nil
}
