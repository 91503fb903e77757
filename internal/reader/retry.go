package reader

import (
	"context"
	"errors"
	"time"

	"aaudSwap/internal/contracts"
)

const maxRetryDelay = 5 * time.Second

// withRetry runs fn until it succeeds, returns a permanent error, or
// maxRetries retries are spent. The delay doubles from baseDelay up to
// maxRetryDelay.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || permanent(err) || attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// permanent reports errors a retry cannot fix: the target has no code or
// returns data of the wrong shape.
func permanent(err error) bool {
	return errors.Is(err, contracts.ErrNoCode) ||
		errors.Is(err, contracts.ErrUndecodable) ||
		errors.Is(err, context.Canceled)
}
