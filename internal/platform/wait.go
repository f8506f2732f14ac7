package platform

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// DefaultPollInterval is the fixed delay between attempts when waiting on
// eventually-consistent backend state (category initialization, CCT matching,
// settlement creation, onboarding).
const DefaultPollInterval = 2 * time.Second

// Poll runs fn with a constant delay between attempts until it succeeds,
// returns a non-retryable error, or ctx is done. Retry count is deliberately
// unbounded: the suite-level context deadline is the backstop, and a caller
// that wants a tighter bound passes a context with its own deadline.
func Poll(ctx context.Context, interval time.Duration, fn func(ctx context.Context) error) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return retry.Do(ctx, retry.NewConstant(interval), fn)
}

// Retryable marks err as a transient condition Poll should retry.
func Retryable(err error) error {
	return retry.RetryableError(err)
}
