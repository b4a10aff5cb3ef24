package lifecycle

import (
	"context"
	"time"
)

// nowFunc is swapped in tests that exercise expiry.
var nowFunc = time.Now

// RetryPolicy bounds how transient gateway failures are retried.
// Rejections are never retried; requotes on market orders at most once.
type RetryPolicy struct {
	// MaxAttempts is the total number of gateway calls per operation.
	MaxAttempts int
	// BaseDelay doubles per attempt up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// ReconcileTimeout bounds the ListOpen query that resolves an
	// ambiguous outcome. It runs on a detached context so it survives
	// the caller's expired deadline.
	ReconcileTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		BaseDelay:        100 * time.Millisecond,
		MaxDelay:         2 * time.Second,
		ReconcileTimeout: 5 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.ReconcileTimeout <= 0 {
		p.ReconcileTimeout = def.ReconcileTimeout
	}
	return p
}

// wait sleeps the backoff for the given attempt, or returns early with the
// context's error.
func (p RetryPolicy) wait(ctx context.Context, attempt int) error {
	d := p.BaseDelay
	for i := 0; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
