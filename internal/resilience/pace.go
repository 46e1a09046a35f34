package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces successive batches at least an interval apart so a long run
// does not monopolise the shared database. A zero interval disables pacing.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a pacer allowing one batch per interval.
func NewPacer(interval time.Duration) *Pacer {
	p := &Pacer{}
	if interval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return p
}

// Wait blocks until the next batch may start. The first call returns
// immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
