package pipeline

import (
	"context"
	"time"

	"reelgen/internal/domain"
)

// RetryPolicy bounds retries of transient stage failures.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// NoRetry runs a stage exactly once.
var NoRetry = RetryPolicy{Attempts: 1}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// backoff is BaseDelay doubled per previous attempt, capped at MaxDelay.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt && d > 0; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// do runs fn with a fresh timeout per attempt. Only errors for which
// domain.IsTransient holds are retried, and never once ctx itself is done.
func (p RetryPolicy) do(ctx context.Context, timeout time.Duration, fn func(context.Context) error, onRetry func(attempt int, err error)) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = runWithTimeout(ctx, timeout, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt >= p.attempts() || !domain.IsTransient(err) {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func runWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
