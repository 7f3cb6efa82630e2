package controller

import (
	"context"
	"time"

	"github.com/unifi-declarative/unifid/pkg/util"
)

// RetryPolicy bounds retry attempts for transient controller failures.
// Delays double after each attempt up to MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy suits the controller's documented rate limits.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 4,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    8 * time.Second,
}

// Do runs fn, retrying on transient errors (rate limits, connectivity
// blips) with exponential backoff. Fatal errors and validation-class
// errors return immediately. Context cancellation aborts the wait.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) || attempt == attempts {
			return err
		}

		util.WithOperation(op).Warnf("transient failure (attempt %d/%d), retrying in %s: %v",
			attempt, attempts, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
