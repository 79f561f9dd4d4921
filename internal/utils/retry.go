package utils

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Retry calls fn up to maxAttempts times, sleeping delay between failures.
// It stops early when ctx is done.
func Retry(ctx context.Context, logger *slog.Logger, maxAttempts int, delay time.Duration, fn func(context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		logger.Warn("attempt failed", slog.Int("attempt", attempt), slog.Int("max_attempts", maxAttempts), slog.Any("error", err))
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
