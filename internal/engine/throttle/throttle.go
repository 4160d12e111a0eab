// Package throttle paces outbound calls to a single external endpoint.
package throttle

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum inter-dispatch interval of 1/perSecond across
// every caller sharing the instance. Dispatch is serialized through the
// token bucket's reservation queue, so concurrent callers cannot race past
// the interval. It is purely a pacing primitive: no results are cached, and
// a failing task never blocks the tasks queued behind it.
type Limiter struct {
	lim *rate.Limiter
}

// New creates a limiter allowing perSecond dispatches per second with no
// bursting. A non-positive rate disables pacing.
func New(perSecond float64) *Limiter {
	if perSecond <= 0 {
		return &Limiter{}
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Wait blocks until the next dispatch slot or until ctx is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.lim == nil {
		return nil
	}
	return l.lim.Wait(ctx)
}

// Run schedules a deferred operation behind the limiter and returns its
// result.
func Run[T any](ctx context.Context, l *Limiter, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := l.Wait(ctx); err != nil {
		return zero, err
	}
	return fn(ctx)
}
