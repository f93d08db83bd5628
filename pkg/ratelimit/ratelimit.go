package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"
)

// Limiter paces outgoing requests to a fixed rate, optionally adding jitter.
// It is safe for concurrent use by multiple goroutines; each call to Wait
// consumes one tick.
type Limiter struct {
	ticker   *time.Ticker
	jitter   float64 // 0.0 to 1.0
	interval time.Duration
	sleeper  Sleeper
}

// NewLimiter creates a limiter allowing rps requests per second. Jitter is
// clamped to [0.0, 1.0] and adds up to jitter*interval of extra delay after
// each tick. If rps is <= 0 the limiter never blocks.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	l := &Limiter{jitter: jitter, sleeper: TimerSleeper{}}
	if rps <= 0 {
		return l
	}

	l.interval = time.Duration(float64(time.Second) / rps)
	l.ticker = time.NewTicker(l.interval)
	return l
}

// Wait blocks until the next request may be sent or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.ticker == nil {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ticker.C:
	}

	if l.jitter == 0 {
		return nil
	}
	extra := time.Duration(float64(l.interval) * l.jitter * rand.Float64())
	return l.sleeper.Sleep(ctx, extra)
}

// Interval returns the spacing between ticks, or 0 for an unlimited limiter.
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}

// Stop releases the underlying ticker.
func (l *Limiter) Stop() {
	if l != nil && l.ticker != nil {
		l.ticker.Stop()
	}
}
