package orchestrator

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ClockSleeper sleeps on clk's timers.
func ClockSleeper(clk clock.Clock) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return ctx.Err()
		}
		timer := clk.Timer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

const maxBackoffShift = 30

// Backoff returns 2^attempt seconds capped at limit. attempt is zero based; limit <= 0 means no cap.
func Backoff(attempt int, limit time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	d := time.Second << uint(attempt)
	if limit > 0 && d > limit {
		return limit
	}
	return d
}
