package llm

import (
	"context"
	"errors"
	"time"

	"github.com/abhisek/pathway/internal/retry"
)

// RetryProvider retries transient provider failures. A response that fails
// schema validation is retried once.
type RetryProvider struct {
	inner   Provider
	policy  retry.Policy
	timeout time.Duration
}

// WithRetry wraps p so that each Generate call follows policy. A positive
// timeout bounds every attempt separately.
func WithRetry(p Provider, policy retry.Policy, timeout time.Duration) Provider {
	return &RetryProvider{inner: p, policy: policy, timeout: timeout}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var (
		resp           *Response
		invalidRetried bool
	)
	classify := func(err error) bool {
		var inv *ErrInvalidResponse
		if errors.As(err, &inv) {
			if invalidRetried {
				return false
			}
			invalidRetried = true
			return true
		}
		return IsTransient(err)
	}
	hint := func(err error) time.Duration {
		var rl *ErrRateLimit
		if errors.As(err, &rl) {
			return rl.RetryAfter
		}
		return 0
	}

	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		out, err := r.inner.Generate(ctx, req)
		if err != nil {
			return err
		}
		resp = out
		return nil
	}, retry.WithClassifier(classify), retry.WithWaitHint(hint), retry.WithAttemptTimeout(r.timeout))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *RetryProvider) Name() string    { return r.inner.Name() }
func (r *RetryProvider) ModelID() string { return r.inner.ModelID() }
