package synthesis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/domain"
)

// RetryPolicy bounds retries of transient backend failures
type RetryPolicy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
}

// WithRetry runs fn up to MaxAttempts times with exponential backoff between
// attempts. Only transient adapter errors are retried; permanent failures
// and non-adapter errors return immediately. The context cancels the wait
// between attempts.
func WithRetry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	delay := policy.InitialDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	mult := policy.BackoffMultiplier
	if mult < 1 {
		mult = 2
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		data, err := fn(ctx)
		if err == nil {
			return data, nil
		}
		lastErr = err

		var aerr *domain.AdapterError
		if !errors.As(err, &aerr) || !aerr.Transient {
			return nil, err
		}

		if attempt == policy.MaxAttempts {
			break
		}

		logger.Warn("Transient synthesis failure, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", policy.MaxAttempts),
			slog.Duration("retry_after", delay),
			slog.Any("error", err),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		delay = time.Duration(float64(delay) * mult)
	}

	return nil, lastErr
}
