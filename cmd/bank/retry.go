package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"simpleBank/internal/pool"
)

// withRetry retries fn while the price oracle is unavailable. Any other
// error is returned at once.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, logger *zap.Logger, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pool.ErrOracleUnavailable) || attempt >= maxRetries {
			return err
		}
		if logger != nil {
			logger.Warn("oracle unavailable, retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
