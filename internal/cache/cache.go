// Package cache wraps the read-through JSON caching the services put in
// front of Postgres. A Cache without a Redis client misses every lookup.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	TTLShort  = 5 * time.Minute
	TTLMedium = 30 * time.Minute
	TTLLong   = 24 * time.Hour
)

// Keys read by more than one service.
const (
	PROFILE_CACHE_PREFIX = "user:profile:"
	GATE_CACHE_PREFIX    = "compliance:gate:"
)

func ProfileKey(id uuid.UUID) string { return PROFILE_CACHE_PREFIX + id.String() }

func GateKey(id uuid.UUID) string { return GATE_CACHE_PREFIX + id.String() }

type Cache struct {
	rdb *redis.Client
	log *logrus.Entry
}

func New(rdb *redis.Client, log *logrus.Entry) *Cache {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Cache{rdb: rdb, log: log}
}

// GetJSON decodes the cached value for key into dst and reports a hit.
// Redis errors are logged and treated as a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dst interface{}) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).WithField("key", key).Warn("redis GET failed, falling back to DB")
		}
		return false
	}
	if err := json.Unmarshal(val, dst); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("discarding undecodable cache entry")
		_ = c.rdb.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	if c == nil || c.rdb == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("failed to encode cache entry")
		return
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("failed to set cache")
	}
}

func (c *Cache) Del(ctx context.Context, keys ...string) {
	if c == nil || c.rdb == nil || len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.WithError(err).WithField("keys", keys).Warn("failed to invalidate cache")
	}
}

// DelPrefix removes every key under prefix. It walks the keyspace with SCAN,
// so keep it off hot paths.
func (c *Cache) DelPrefix(ctx context.Context, prefix string) {
	if c == nil || c.rdb == nil || prefix == "" {
		return
	}
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.WithError(err).WithField("prefix", prefix).Warn("failed to scan cache keys")
		return
	}
	c.Del(ctx, keys...)
}
