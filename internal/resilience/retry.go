// Package resilience implements the retry and circuit-breaker combinators
// the Orchestrator wraps around its dependency calls. The breaker wraps the
// retry wrapper: one breaker attempt is one retry-wrapped logical call.
package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds re-invocation of a failing operation. Between attempt
// n and n+1 the caller waits min(Cap, Base·2^(n-1)) · (1+jitter), jitter
// uniform in [0, 0.5).
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration

	// Jitter returns a value in [0, 1); it is scaled to [0, 0.5).
	// Defaults to math/rand. Test seam.
	Jitter func() float64
	// Sleep waits for d or until ctx is done. Test seam.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy matches the documented defaults: 3 attempts, 1 s base,
// 10 s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Base: time.Second, Cap: 10 * time.Second}
}

func (p RetryPolicy) jitter() float64 {
	if p.Jitter != nil {
		return p.Jitter()
	}
	return rand.Float64()
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff computes the wait before the given retry (attempt is 1-based and
// counts the attempt that just failed).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	wait := p.Base << (attempt - 1)
	if p.Cap > 0 && wait > p.Cap {
		wait = p.Cap
	}
	return time.Duration(float64(wait) * (1 + p.jitter()*0.5))
}

// WithRetry runs op up to MaxAttempts times, waiting between attempts.
// Only errors retryable deems transient are retried; cancellation of ctx
// aborts immediately.
func WithRetry(ctx context.Context, policy RetryPolicy, retryable func(error) bool, op func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt >= attempts || !retryable(err) {
			return err
		}
		if sleepErr := policy.sleep(ctx, policy.Backoff(attempt)); sleepErr != nil {
			return err
		}
	}
}
