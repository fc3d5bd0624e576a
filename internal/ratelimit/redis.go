package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed-window store shared by every replica. Each window gets
// its own key that expires with the window.
type Redis struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client, now: time.Now}
}

func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := r.now()
	start := now.Truncate(window)
	reset := start.Add(window)
	k := "opsdesk:ratelimit:" + key + ":" + strconv.FormatInt(start.UnixMilli(), 10)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.PExpire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	count := int(incr.Val())
	remaining := max(limit-count, 0)
	return Result{Allowed: count <= limit, Limit: limit, Remaining: remaining, ResetAt: reset}, nil
}
