package twitter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// newLimiter spreads the configured request budget evenly across the
// rate window, with a small burst so short crawls are not throttled.
func newLimiter(requests, windowMinutes int) *rate.Limiter {
	window := time.Duration(windowMinutes) * time.Minute
	interval := window / time.Duration(requests)
	return rate.NewLimiter(rate.Every(interval), 5)
}

func (c *TwitterClient) waitForSlot(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}
