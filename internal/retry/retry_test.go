package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abhisek/pathway/internal/apperr"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		InitialWait: 1 * time.Millisecond,
		MaxWait:     10 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_TransientThenSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		if calls == 1 {
			return apperr.Transient("analyzer", errors.New("down"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		return apperr.Transient("analyzer", errors.New("down"))
	})
	if !errors.Is(err, apperr.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		return apperr.Validation("bad payload")
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy()
	p.InitialWait = time.Second
	p.MaxWait = time.Second

	calls := 0
	err := Do(ctx, p, func(context.Context) error {
		calls++
		cancel()
		return apperr.Transient("analyzer", errors.New("down"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_AttemptTimeoutIsRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}, WithAttemptTimeout(5*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_CustomClassifierAndHint(t *testing.T) {
	sentinel := errors.New("busy")
	hinted := 0
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		if calls == 1 {
			return sentinel
		}
		return nil
	},
		WithClassifier(func(err error) bool { return errors.Is(err, sentinel) }),
		WithWaitHint(func(error) time.Duration { hinted++; return time.Millisecond }),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hinted != 1 {
		t.Fatalf("expected hint consulted once, got %d", hinted)
	}
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return apperr.Transient("x", nil)
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestBackoff_CapsAtMaxWait(t *testing.T) {
	p := Policy{InitialWait: 100 * time.Millisecond, MaxWait: 400 * time.Millisecond, Multiplier: 2}

	for attempt := range 6 {
		d := p.Backoff(attempt)
		if d > 480*time.Millisecond {
			t.Fatalf("attempt %d: backoff %v exceeds cap plus jitter", attempt, d)
		}
	}

	d := p.Backoff(0)
	if d < 80*time.Millisecond || d > 120*time.Millisecond {
		t.Fatalf("first backoff %v outside ±20%% of 100ms", d)
	}
}
