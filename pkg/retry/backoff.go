package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultInterval is the Forever delay used when none is configured.
const DefaultInterval = time.Second

// exponential builds the schedule for p. A zero MaxElapsedTime never expires.
func exponential(p Policy) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = p.MaxElapsedTime
	return exp
}

// Constant waits interval between attempts until ctx is done. A non-positive
// interval falls back to DefaultInterval.
func Constant(ctx context.Context, interval time.Duration) backoff.BackOffContext {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
}

// Delay is the wait that follows the given failed attempt under p, ignoring
// jitter. It is what onRetry callbacks report.
func Delay(p Policy, attempt int) time.Duration {
	d := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	return time.Duration(d)
}
