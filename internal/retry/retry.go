// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/abhisek/pathway/internal/apperr"
)

// Policy configures retry behavior for transient failures.
type Policy struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	InitialWait time.Duration `env:"INITIAL_WAIT" envDefault:"200ms"`
	MaxWait     time.Duration `env:"MAX_WAIT" envDefault:"5s"`
	Multiplier  float64       `env:"MULTIPLIER" envDefault:"2"`
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2.0,
	}
}

// Classifier decides whether an error should be retried.
type Classifier func(error) bool

// WaitHint lets an error override the computed backoff, e.g. a provider's
// Retry-After header. Returning zero keeps the computed wait.
type WaitHint func(error) time.Duration

// Option customizes a single Do call.
type Option func(*runner)

// WithClassifier replaces apperr.IsRetryable as the retry predicate.
func WithClassifier(c Classifier) Option {
	return func(r *runner) { r.classify = c }
}

// WithWaitHint installs a backoff override.
func WithWaitHint(h WaitHint) Option {
	return func(r *runner) { r.hint = h }
}

// WithAttemptTimeout bounds each attempt with its own deadline.
func WithAttemptTimeout(d time.Duration) Option {
	return func(r *runner) { r.attemptTimeout = d }
}

type runner struct {
	policy         Policy
	classify       Classifier
	hint           WaitHint
	attemptTimeout time.Duration
}

// Do calls fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted, or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, opts ...Option) error {
	r := &runner{policy: p, classify: apperr.IsRetryable}
	for _, o := range opts {
		o(r)
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := range attempts {
		lastErr = r.call(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !r.classify(lastErr) {
			return lastErr
		}

		// Last attempt: don't sleep, just return the error.
		if attempt == attempts-1 {
			break
		}

		wait := r.backoff(attempt, lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

func (r *runner) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.attemptTimeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()
	return fn(actx)
}

func (r *runner) backoff(attempt int, err error) time.Duration {
	if r.hint != nil {
		if d := r.hint(err); d > 0 {
			return d
		}
	}
	return r.policy.Backoff(attempt)
}

// Backoff computes the wait before the retry following attempt (0-based),
// with ±20% jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	wait := float64(p.InitialWait) * math.Pow(mult, float64(attempt))
	if p.MaxWait > 0 && wait > float64(p.MaxWait) {
		wait = float64(p.MaxWait)
	}

	jitter := wait * 0.2 * (2*rand.Float64() - 1)
	wait += jitter

	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}
