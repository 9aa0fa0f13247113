package provider

import (
	"context"
	"log/slog"
	"time"
)

// DefaultMaxAttempts is the number of attempts RetryWithBackoff makes
// when the caller passes a non-positive value.
const DefaultMaxAttempts = 3

// RetryWithBackoff executes op up to maxAttempts times, sleeping
// 2^attempt seconds between failures. When the final attempt fails its
// error is propagated unchanged.
//
// This wraps only the connection-establishment step of an adapter,
// never an open stream: retrying a partially-consumed stream is
// undefined.
func RetryWithBackoff[T any](ctx context.Context, maxAttempts int, op func() (T, error)) (T, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		v, err := op()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == maxAttempts-1 {
			break
		}

		delay := time.Duration(1<<attempt) * time.Second
		slog.Warn("upstream connect failed, retrying",
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", err.Error(),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}
