package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
	"github.com/Marabunta159/VoiceCoach/internal/metrics"
)

// HTTPBackend posts WAV segments as multipart/form-data to a
// Whisper-compatible endpoint.
type HTTPBackend struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Concurrency limit
	retry      *retrier
	stats      *counters
	logger     *slog.Logger
}

// Response represents the JSON body returned by the transcription API
type Response struct {
	Text     string            `json:"text"`
	Language string            `json:"language,omitempty"`
	Duration float64           `json:"duration,omitempty"`
	Segments []ResponseSegment `json:"segments,omitempty"`
}

// ResponseSegment represents a segment of transcribed text
type ResponseSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Fragments returns the segment texts, or the whole text when the response
// carries no segments.
func (r *Response) Fragments() []string {
	if len(r.Segments) == 0 {
		if r.Text == "" {
			return nil
		}
		return []string{r.Text}
	}
	out := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		out = append(out, s.Text)
	}
	return out
}

// NewHTTPBackend creates a new transcription HTTP client
func NewHTTPBackend(config Config, logger *slog.Logger, m *metrics.Metrics) (*HTTPBackend, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	applyDefaults(&config)
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	stats := &counters{}
	return &HTTPBackend{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		stats:      stats,
		logger:     logger.With(slog.String("backend", ProviderHTTP)),
		retry: &retrier{
			maxRetries: config.MaxRetries,
			backoff:    config.RetryBackoff,
			stats:      stats,
			metrics:    m,
			retryable:  isRetryableError,
		},
	}, nil
}

// Transcribe encodes samples as WAV and sends them for transcription
func (c *HTTPBackend) Transcribe(ctx context.Context, samples []float32) ([]string, error) {
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
	requestID := uuid.NewString()

	var resp *Response
	err = c.retry.do(ctx, func(ctx context.Context) error {
		r, err := c.doRequest(ctx, requestID, wav)
		if err != nil {
			c.logger.Debug("Transcription attempt failed",
				slog.String("request_id", requestID),
				slog.String("error", err.Error()),
			)
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
	return resp.Fragments(), nil
}

// doRequest performs a single HTTP request to the transcription API
func (c *HTTPBackend) doRequest(ctx context.Context, requestID string, wav []byte) (*Response, error) {
	body, contentType, err := c.createMultipartRequest(requestID, wav)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "VoiceCoach/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed Response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return &parsed, nil
}

// createMultipartRequest creates a multipart/form-data request body
func (c *HTTPBackend) createMultipartRequest(requestID string, wav []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", requestID+".wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(wav); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	opts := c.config.Options
	fields := map[string]string{
		"request_id":      requestID,
		"sample_rate":     strconv.Itoa(c.config.SampleRate),
		"response_format": "verbose_json",
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	if opts.Model != "" {
		fields["model"] = opts.Model
	}
	if opts.Prompt != "" {
		fields["prompt"] = opts.Prompt
	}
	if opts.Temperature > 0 {
		fields["temperature"] = fmt.Sprintf("%.2f", opts.Temperature)
	}
	if opts.BeamSize > 0 {
		fields["beam_size"] = strconv.Itoa(opts.BeamSize)
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// Stats returns current client statistics
func (c *HTTPBackend) Stats() Stats {
	return c.stats.snapshot(ProviderHTTP, len(c.semaphore))
}

// Close waits for in-flight requests to complete
func (c *HTTPBackend) Close() error {
	for i := 0; i < cap(c.semaphore); i++ {
		c.semaphore <- struct{}{}
	}
	for i := 0; i < cap(c.semaphore); i++ {
		<-c.semaphore
	}
	c.httpClient.CloseIdleConnections()
	return nil
}
