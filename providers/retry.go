package providers

import (
	"context"
	"time"

	"chat-relay-service/metrics"

	"github.com/apex/log"
)

// backoff is the wait before the given attempt
var backoff = func(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// withRetry runs fn up to MaxRetries times, sleeping 2^attempt seconds between
// attempts. Errors IsRetryable rejects are returned immediately.
func withRetry[T any](ctx context.Context, provider string, fn func() (T, error)) (T, error) {
	return withRetryIf(ctx, provider, IsRetryable, fn)
}

func withRetryIf[T any](ctx context.Context, provider string, retryable func(error) bool, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.ProviderRetriesTotal.WithLabelValues(provider).Inc()
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff(attempt)):
			}
			if err := ctx.Err(); err != nil {
				return zero, err
			}
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		log.WithFields(log.Fields{
			"provider": provider,
			"attempt":  attempt + 1,
			"status":   StatusCode(err),
		}).WithError(err).Warn("provider.request.failed")

		if !retryable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}
