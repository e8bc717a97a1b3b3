package notify

import (
	"context"
	"time"
)

// RetryConfig bounds SendWithRetry.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
}

// SendWithRetry runs send up to MaxAttempts times with a linearly growing
// delay between attempts, capped at MaxDelay.
func SendWithRetry(ctx context.Context, cfg RetryConfig, send func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt > 0 {
			delay := time.Duration(attempt) * cfg.Delay
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := send(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	return lastErr
}
