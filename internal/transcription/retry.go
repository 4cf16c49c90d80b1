package transcription

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/metrics"
)

const maxBackoff = 30 * time.Second

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// retrier runs a request with exponential backoff between attempts
type retrier struct {
	maxRetries int
	backoff    time.Duration
	stats      *counters
	metrics    *metrics.Metrics
	retryable  func(error) bool
}

func (r *retrier) do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			r.stats.incrementTotalRetries()
			r.metrics.RecordTranscriptionRetry()

			backoffTime := r.backoff << (attempt - 1)
			if backoffTime > maxBackoff || backoffTime <= 0 {
				backoffTime = maxBackoff
			}

			timer := time.NewTimer(backoffTime)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !r.retryable(err) {
			break
		}
	}

	return fmt.Errorf("transcription failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

// isRetryableError reports whether a request error is worth retrying:
// server errors, rate limiting, timeouts and refused or reset connections.
func isRetryableError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == 429
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "connection") || strings.Contains(msg, "timeout")
}
