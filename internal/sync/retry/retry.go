// Package retry holds the backoff policy shared by every store call of a
// run: list pages, head calls and uploads.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kubetraining/sitesync/errors"
)

// Policy bounds the retries of a transient store failure.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// RandomizationFactor spreads each interval by ±factor
	RandomizationFactor float64
}

// Default returns 3 retries starting at 500ms, doubling up to 10s.
func Default() Policy {
	return Policy{
		MaxRetries:          3,
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.25,
	}
}

// MaxAttempts returns the total number of attempts the policy allows.
func (p Policy) MaxAttempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// NewBackOff builds the schedule for one call. The schedule stops when ctx
// is cancelled, so no retry starts after cancellation.
func (p Policy) NewBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	if p.Multiplier >= 1 {
		exp.Multiplier = p.Multiplier
	}
	if p.RandomizationFactor >= 0 && p.RandomizationFactor < 1 {
		exp.RandomizationFactor = p.RandomizationFactor
	}
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Do runs call until it succeeds, fails with a non-transient error, the
// retry budget is spent or ctx is cancelled. Every attempt gets its own
// context bounded by timeout. notify, when set, sees each failed attempt
// that will be retried. Do returns the number of attempts made and the
// last error.
func (p Policy) Do(
	ctx context.Context,
	timeout time.Duration,
	call func(ctx context.Context) error,
	notify func(attempt int, err error, wait time.Duration),
) (int, error) {
	attempts := 0
	var lastErr error

	operation := func() error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := call(callCtx)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Classify(err) != errors.KindTransient {
			return backoff.Permanent(err)
		}
		return err
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, wait time.Duration) {
			notify(attempts, err, wait)
		}
	}

	err := backoff.RetryNotify(operation, p.NewBackOff(ctx), onRetry)
	if err != nil && lastErr != nil {
		err = lastErr
	}
	return attempts, err
}
