package limiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCounter is the subset of *redis.Client used by the limiter.
type redisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// Redis is a fixed-window limiter on INCR with a key TTL equal to the window.
type Redis struct {
	client redisCounter
	prefix string
	window time.Duration
	max    int64
}

// NewRedis constructs a Redis-backed limiter. Keys are stored under prefix.
func NewRedis(client redisCounter, prefix string, window time.Duration, maxHits int) *Redis {
	return &Redis{client: client, prefix: prefix, window: window, max: int64(maxHits)}
}

// Allow increments the window counter; the first hit in a window arms its expiry.
func (l *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + key
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, err
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, err
		}
	}
	if n <= l.max {
		return true, 0, nil
	}
	ttl, err := l.client.TTL(ctx, k).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl < 0 {
		// Counter lost its expiry; re-arm so the key cannot stay blocked forever.
		_ = l.client.Expire(ctx, k, l.window).Err()
		ttl = l.window
	}
	return false, ttl, nil
}
