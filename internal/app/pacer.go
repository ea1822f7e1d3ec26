package app

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// MinDispatchInterval keeps sends under the platform's per-chat rate limit.
const MinDispatchInterval = 5 * time.Second

// Pacer spaces consecutive import steps. Wait blocks until the next step may
// start or ctx is done; Release marks the end of a step.
type Pacer interface {
	Wait(ctx context.Context) error
	Release()
}

// FixedDelayPacer enforces a fixed delay between the end of one step and the
// start of the next, across batches.
type FixedDelayPacer struct {
	clock clockwork.Clock
	delay time.Duration

	mu    sync.Mutex
	armed bool
	last  time.Time
}

func NewFixedDelayPacer(clock clockwork.Clock, delay time.Duration) *FixedDelayPacer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FixedDelayPacer{clock: clock, delay: delay}
}

func (p *FixedDelayPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	remaining := time.Duration(0)
	if p.armed {
		remaining = p.delay - p.clock.Since(p.last)
	}
	p.mu.Unlock()

	if remaining <= 0 {
		return ctx.Err()
	}
	timer := p.clock.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *FixedDelayPacer) Release() {
	p.mu.Lock()
	p.armed = true
	p.last = p.clock.Now()
	p.mu.Unlock()
}

// BucketPacer is a single-token bucket refilled once per interval. Spacing is
// measured between successive step starts, so a slow step eats into the gap
// before the next one. Use FixedDelayPacer when the gap must follow the end
// of a send.
type BucketPacer struct {
	clock   clockwork.Clock
	limiter *rate.Limiter
}

func NewBucketPacer(clock clockwork.Clock, interval time.Duration) *BucketPacer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &BucketPacer{clock: clock, limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (p *BucketPacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := p.clock.Now()
	r := p.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	timer := p.clock.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		r.CancelAt(p.clock.Now())
		return ctx.Err()
	}
}

func (p *BucketPacer) Release() {}

// NoopPacer never waits. It backs dry runs.
type NoopPacer struct{}

func (NoopPacer) Wait(ctx context.Context) error { return ctx.Err() }

func (NoopPacer) Release() {}
