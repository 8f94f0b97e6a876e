package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WindowConfig tunes the fixed-window endpoint limiter.
type WindowConfig struct {
	Limit  int
	Window time.Duration
}

// Window is a fixed-window counter keyed by caller identity (client IP for
// the sensitive auth endpoints). The first hit in a window sets the TTL;
// the budget resets when the window key expires.
type Window struct {
	redis  redis.UniversalClient
	prefix string
	config WindowConfig
}

// NewWindow creates a fixed-window limiter under the given key prefix.
func NewWindow(redisClient redis.UniversalClient, prefix string, cfg WindowConfig) *Window {
	return &Window{redis: redisClient, prefix: prefix, config: cfg}
}

// Allow consumes one unit of budget for key. When the budget is spent it
// returns [ErrLimited] and the time until the window resets.
func (w *Window) Allow(ctx context.Context, key string) (time.Duration, error) {
	fullKey := w.prefix + ":" + key

	pipe := w.redis.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, w.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if incr.Val() <= int64(w.config.Limit) {
		return 0, nil
	}

	ttl, err := w.redis.PTTL(ctx, fullKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		ttl = w.config.Window
	}
	return ttl, ErrLimited
}
