package geocode

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates outbound provider calls. *rate.Limiter satisfies it;
// tests can inject NopLimiter to skip throttling.
type Limiter interface {
	Wait(ctx context.Context) error
}

// DefaultProviderInterval is the minimum spacing between successive
// provider calls, matching the public Nominatim rate limit with margin.
const DefaultProviderInterval = 1100 * time.Millisecond

// NewDefaultLimiter returns a token-bucket limiter enforcing the default
// inter-call interval with a burst of one.
func NewDefaultLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(DefaultProviderInterval), 1)
}

// NopLimiter never blocks
type NopLimiter struct{}

func (NopLimiter) Wait(ctx context.Context) error {
	return ctx.Err()
}
