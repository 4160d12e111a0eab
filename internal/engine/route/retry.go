package route

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	maxAttempts  = 3
	baseBackoff  = 500 * time.Millisecond
	maxBackoff   = 5 * time.Second
	jitterFactor = 0.5
)

// StatusError is a non-2xx answer from an external service.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Transient reports whether the failure is worth retrying: rate limits and
// server-side errors are, malformed-request answers are not.
func (e *StatusError) Transient() bool {
	return e.Code == 429 || e.Code >= 500
}

func retryable(err error) bool {
	if se, ok := err.(*StatusError); ok {
		return se.Transient()
	}
	// Network-level failures (timeouts, resets) come back as plain errors
	// and are treated as transient.
	return true
}

// withRetry runs fn with bounded exponential backoff plus jitter. Permanent
// failures abort immediately.
func withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == maxAttempts-1 {
			return lastErr
		}

		backoff := baseBackoff * time.Duration(1<<uint(attempt))
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		jitter := time.Duration(float64(backoff) * jitterFactor * rand.Float64())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}
	return lastErr
}
