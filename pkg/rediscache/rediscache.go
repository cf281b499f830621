// Package rediscache implements a generic, best-effort Redis mirror for the
// code dictionaries (spec.md §2 "Dictionary Redis mirror"). Grounded on the
// teacher's dangling pkg/cache/redis_test.go for the RedisCache API shape
// (Set/Get/Exists/Delete/Close over a client+ctx pair) and on the
// client.Set(ctx, key, value, ttl) call idiom in
// _examples/other_examples/Xevion-banner__internal-api-scrape.go.go.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("rediscache: key not found")

// RedisCache wraps a go-redis client with a generic JSON-marshaling
// Set/Get pair plus the existence/deletion primitives the dictionary mirror
// needs.
type RedisCache struct {
	client *redis.Client
	ctx    context.Context
}

// New connects to addr. The returned cache is usable even if addr is
// unreachable at construction time; failures surface per-call.
func New(addr string) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ctx:    context.Background(),
	}
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Set marshals value as JSON and stores it under key with the given TTL.
// A zero TTL means no expiration.
func (c *RedisCache) Set(key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("rediscache: marshal %s: %w", key, err)
	}
	return c.client.Set(c.ctx, key, data, ttl).Err()
}

// Get reads key and unmarshals it into dest.
func (c *RedisCache) Get(key string, dest any) error {
	data, err := c.client.Get(c.ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("rediscache: get %s: %w", key, err)
	}
	return json.Unmarshal(data, dest)
}

// Exists reports whether key is present.
func (c *RedisCache) Exists(key string) (bool, error) {
	n, err := c.client.Exists(c.ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rediscache: exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Delete removes key, if present.
func (c *RedisCache) Delete(key string) error {
	return c.client.Del(c.ctx, key).Err()
}

// MirrorDictionary best-effort overwrites key with the full contents of a
// code dictionary snapshot (subjects, attributes, instructors, or
// restrictions), used by the harvester once after the whole run. Errors
// are non-fatal by design (spec.md §9 "optional sinks never gate
// correctness") and are returned only so the caller can log them.
func (c *RedisCache) MirrorDictionary(key string, snapshot any) error {
	return c.Set(key, snapshot, 0)
}
