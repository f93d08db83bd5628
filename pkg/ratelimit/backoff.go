package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"
)

// Default retry policy for provider rate limiting (HTTP 429).
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 5 * time.Second
	DefaultMaxJitter   = 3 * time.Second
)

// Backoff computes exponentially increasing delays with additive jitter.
// The zero value uses the package defaults and math/rand/v2 for jitter.
type Backoff struct {
	BaseDelay time.Duration
	MaxJitter time.Duration
	// Rand returns a value in [0.0, 1.0). Tests replace it to make Delay
	// deterministic.
	Rand func() float64
}

// Delay returns BaseDelay * 2^attempt plus a jitter in [0, MaxJitter).
// Negative attempts are treated as 0.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if attempt < 0 {
		attempt = 0
	}
	// Cap the shift so a runaway attempt count cannot overflow Duration.
	if attempt > 30 {
		attempt = 30
	}

	d := base << uint(attempt)

	maxJitter := b.MaxJitter
	if maxJitter < 0 {
		maxJitter = 0
	} else if maxJitter == 0 {
		maxJitter = DefaultMaxJitter
	}
	rnd := b.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	return d + time.Duration(rnd()*float64(maxJitter))
}

// Sleeper blocks for a duration or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to the Sleeper interface.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f(ctx, d).
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

// Sleep waits for d to elapse. It returns ctx.Err() if the context ends first.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
