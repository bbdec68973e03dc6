package probe

import (
	"context"

	"golang.org/x/time/rate"
)

// limiter paces iterations across all virtual users
type limiter interface {
	// wait blocks until the next iteration may start
	wait(ctx context.Context) error
}

// nopeLimiter never limits requests
type nopeLimiter struct{}

func (nopeLimiter) wait(ctx context.Context) error { return ctx.Err() }

type tokenLimiter struct {
	lim *rate.Limiter
}

// newLimiter returns a full token bucket refilled at qps, or a
// nopeLimiter when qps is not positive.
func newLimiter(qps int) limiter {
	if qps <= 0 {
		return nopeLimiter{}
	}
	return &tokenLimiter{lim: rate.NewLimiter(rate.Limit(qps), qps)}
}

// wait fails once ctx is done or the next token lies beyond its deadline.
func (t *tokenLimiter) wait(ctx context.Context) error {
	return t.lim.Wait(ctx)
}
