package webshare

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/NamanBalaji/wsdl/internal/logger"
)

// calculateBackoff calculates a backoff duration with jitter
func calculateBackoff(retryCount int, baseDelay time.Duration) time.Duration {
	// Exponential backoff: 2^retryCount * baseDelay
	delay := baseDelay * (1 << uint(retryCount))

	// Apply jitter to avoid thundering herd (between 75% and 125% of computed delay)
	jitterFactor := 0.75 + 0.5*rand.Float64()
	jitter := time.Duration(float64(delay) * jitterFactor)

	maxDelay := 2 * time.Minute
	if jitter > maxDelay {
		jitter = maxDelay
	}

	return jitter
}

func isRetryable(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Temporary()
}

// withRetry runs fn until it succeeds, fails permanently or runs out of attempts.
func withRetry[T any](ctx context.Context, maxRetries int, baseDelay time.Duration, op string, fn func() (T, error)) (T, error) {
	var (
		res T
		err error
	)
	for attempt := 0; ; attempt++ {
		res, err = fn()
		if err == nil || !isRetryable(err) || attempt >= maxRetries {
			return res, err
		}

		wait := calculateBackoff(attempt, baseDelay)
		logger.Debugf("Retrying %s in %v (attempt %d/%d): %v", op, wait, attempt+1, maxRetries, err)

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(wait):
		}
	}
}
