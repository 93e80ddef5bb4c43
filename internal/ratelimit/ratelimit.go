// Package ratelimit implements a distributed fixed-window limiter: a
// `throttle:` prefixed counter in Redis, keyed by client IP. There is
// no gradual refill; a client's whole budget comes back at once when
// its window key expires.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Limiter is a fixed-window counter backed by Redis INCR + EXPIRE,
// which is process-external so horizontal scaling of the gateway is
// correct.
type Limiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

// New constructs a Limiter with the given window and request budget.
func New(rdb *redis.Client, limit int, ttl time.Duration) *Limiter {
	return &Limiter{rdb: rdb, limit: limit, ttl: ttl}
}

// Allow increments the counter for clientIP and reports whether the
// request is within budget for the current window.
func (l *Limiter) Allow(ctx context.Context, clientIP string) (bool, error) {
	key := fmt.Sprintf("throttle:%s", clientIP)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.ttl).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(l.limit), nil
}
