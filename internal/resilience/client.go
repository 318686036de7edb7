package resilience

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Iradukunda-Fils/microservices-demo/internal/apierr"
	"github.com/Iradukunda-Fils/microservices-demo/internal/obs"
)

// Retryable reports whether an RPC failure is transient: transport
// failures, exceeded deadlines and unavailable/resource-exhausted server
// conditions. Logical failures ("user not found") are not retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// Caller composes the breaker around the retry wrapper for one target
// service: one logical RPC is one attempt from the breaker's perspective.
type Caller struct {
	target   string
	breaker  *Breaker
	retry    RetryPolicy
	deadline time.Duration
}

// CallerConfig sizes a Caller.
type CallerConfig struct {
	Target        string
	FailThreshold int
	ResetTimeout  time.Duration
	Retry         RetryPolicy
	Deadline      time.Duration
}

// NewCaller builds a resilient caller for one dependency.
func NewCaller(cfg CallerConfig) *Caller {
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = 5 * time.Second
	}
	return &Caller{
		target: cfg.Target,
		breaker: NewBreaker(cfg.Target, cfg.FailThreshold, cfg.ResetTimeout,
			WithStateHook(func(name string, state int) { obs.SetBreakerState(name, state) })),
		retry:    cfg.Retry,
		deadline: deadline,
	}
}

// Breaker exposes the underlying breaker state for readiness reporting.
func (c *Caller) Breaker() *Breaker { return c.breaker }

// Do runs one logical RPC under the per-call deadline, retry policy and
// circuit breaker. Transport failures surface as DependencyUnavailable
// only after retries are exhausted; an open breaker fails immediately
// without a network attempt.
func (c *Caller) Do(ctx context.Context, method string, op func(ctx context.Context) error) error {
	err := c.breaker.Do(func() error {
		return WithRetry(ctx, c.retry, Retryable, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, c.deadline)
			defer cancel()
			err := op(callCtx)
			if err != nil {
				obs.ObserveRPCAttempt(c.target, method, "error")
			} else {
				obs.ObserveRPCAttempt(c.target, method, "ok")
			}
			return err
		})
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOpen):
		return apierr.Wrap(apierr.KindDependencyUnavailable, err, "%s is unavailable", c.target)
	case Retryable(err):
		return apierr.Wrap(apierr.KindDependencyUnavailable, err, "%s did not respond", c.target)
	default:
		return err
	}
}
