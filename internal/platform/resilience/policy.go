// Package resilience runs upstream calls under a bounded retry policy.
//
// A Policy bundles the three knobs every upstream client in this service
// needs: how many attempts in total, how long to wait between them, and which
// failures are worth another attempt. The retry loop itself is
// github.com/sethvargo/go-retry; a Policy only decides how to configure it.
package resilience

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Strategy selects how the delay between attempts evolves.
type Strategy int

const (
	// Fixed waits the same delay before every retry.
	Fixed Strategy = iota
	// Exponential starts at the base delay and doubles before every retry.
	Exponential
)

func (s Strategy) String() string {
	switch s {
	case Exponential:
		return "exponential"
	default:
		return "fixed"
	}
}

// Policy is a retry budget. The zero value makes a single attempt.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Delay is the wait before the first retry.
	Delay    time.Duration
	Strategy Strategy

	// Retryable reports whether a failed attempt may be retried. A nil
	// Retryable treats every error as final.
	Retryable func(error) bool

	// OnRetry is called before each wait with the 1-based number of the
	// attempt that just failed, the upcoming delay, and the failure.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// FixedPolicy retries with a constant delay.
func FixedPolicy(maxAttempts int, delay time.Duration, retryable func(error) bool) Policy {
	return Policy{MaxAttempts: maxAttempts, Delay: delay, Strategy: Fixed, Retryable: retryable}
}

// ExponentialPolicy retries with a delay that starts at base and doubles.
func ExponentialPolicy(maxAttempts int, base time.Duration, retryable func(error) bool) Policy {
	return Policy{MaxAttempts: maxAttempts, Delay: base, Strategy: Exponential, Retryable: retryable}
}

// Backoff returns a fresh delay sequence for one call. It yields
// MaxAttempts-1 delays and then stops.
func (p Policy) Backoff() retry.Backoff {
	delay := p.Delay
	if delay <= 0 {
		delay = time.Nanosecond
	}

	var b retry.Backoff
	if p.Strategy == Exponential {
		b = retry.NewExponential(delay)
	} else {
		b = retry.NewConstant(delay)
	}

	var retries uint64
	if p.MaxAttempts > 1 {
		retries = uint64(p.MaxAttempts - 1)
	}
	return retry.WithMaxRetries(retries, b)
}

// Do calls fn until it succeeds, fails with a non-retryable error, the
// budget runs out, or ctx is done. When the budget runs out the error of the
// last attempt is returned as-is.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var (
		attempt int
		last    error
	)

	inner := p.Backoff()
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := inner.Next()
		if !stop && p.OnRetry != nil {
			p.OnRetry(attempt, delay, last)
		}
		return delay, stop
	})

	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && p.Retryable(err) {
			last = err
			return retry.RetryableError(err)
		}
		return err
	})
}
