package ai

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/kiranshivaraju/booktrans/internal/ai/apierr"
)

// RetryPolicy decides how often and how long to wait between attempts.
// Only rate limited and transient failures are retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter adds up to this fraction of the delay at random.
	Jitter float64

	// rand returns a value in [0, 1). Tests replace it.
	rand func() float64
}

// DefaultRetryPolicy waits 1s, 2s, 4s, 8s between five attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		Jitter:      0.1,
	}
}

// RetryNotice describes an upcoming retry.
type RetryNotice struct {
	Attempt     int // attempt that just failed, starting at 1
	MaxAttempts int
	Wait        time.Duration
	RateLimited bool
	Err         error
}

// Notifier receives a notice before every wait. It runs on the calling
// goroutine and must not block for long.
type Notifier func(RetryNotice)

// Backoff returns the wait after the given failed attempt. A larger
// provider supplied Retry-After wins over the exponential delay, and the
// result never exceeds MaxDelay.
func (p RetryPolicy) Backoff(attempt int, err error) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if ra := apierr.RetryAfter(err); ra > d {
		d = ra
	}
	if p.Jitter > 0 {
		r := rand.Float64
		if p.rand != nil {
			r = p.rand
		}
		d += time.Duration(float64(d) * p.Jitter * r())
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, fails with a non retryable error, runs out
// of attempts or ctx is done. The returned error wraps the last failure.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error, notify Notifier) error {
	attempts := max(p.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !apierr.Retryable(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w (last error: %w)", ctxErr, err)
		}
		if attempt >= attempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
		}

		wait := p.Backoff(attempt, err)
		if notify != nil {
			notify(RetryNotice{
				Attempt:     attempt,
				MaxAttempts: attempts,
				Wait:        wait,
				RateLimited: apierr.Kind(err) == apierr.ErrRateLimited,
				Err:         err,
			})
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %w)", ctx.Err(), err)
		case <-timer.C:
		}
	}
}
