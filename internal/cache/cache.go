// Package cache implements the response cache: a thin Redis-backed
// get/set/delete/deletePattern surface, plus singleflight stampede
// control for concurrent cache misses on the same key.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/singleflight"
)

// Cache wraps a Redis client. This type itself just surfaces errors so
// the caller can decide; the search pipeline treats a Get failure as a
// miss and ignores a Set failure, without logging either one.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

// New wraps an already-configured *redis.Client.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Get fetches key and unmarshals it into dest. Returns (false, nil)
// on a clean miss, and (false, err) on a Redis-level failure.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set serializes value and stores it under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// Delete removes a single key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// DeletePattern removes every key matching a glob pattern, scanning
// rather than KEYS to avoid blocking a shared Redis instance.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Ping checks Redis connectivity for the health endpoint.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SingleFlight deduplicates concurrent cache misses for the same key
// onto a single call to fn, the stampede control §4.6 notes as
// optional ("implementations may add per-key locking").
func (c *Cache) SingleFlight(key string, fn func() (interface{}, error)) (interface{}, error, bool) {
	return c.sf.Do(key, fn)
}
