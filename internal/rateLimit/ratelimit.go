package rateLimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit is a request budget; the window restarts on every hit.
type Limit struct {
	Rate   int
	Period time.Duration
}

var (
	PerSigner = Limit{Rate: 30, Period: time.Minute}
	PerIP     = Limit{Rate: 300, Period: time.Minute}
)

type RateLimiter struct {
	client redis.Cmdable
}

func NewRateLimiter(client redis.Cmdable) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow counts one hit against key. Redis errors deny the request.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit Limit) bool {
	fullKey := "rl:" + key

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, limit.Period)

	if _, err := pipe.Exec(ctx); err != nil {
		return false
	}
	return incr.Val() <= int64(limit.Rate)
}
