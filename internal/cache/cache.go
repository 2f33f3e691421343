// Package cache memoises the expensive external lookups (reverse
// geocoding, elevation) in Redis. Entries are small hashes keyed by
// coordinates, so they survive station identity changes. Successes and
// errors are both cached, with TTLs that depend on the outcome; timeouts
// are never written here at all.
package cache

import (
	"context"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLs carry a random jitter so a burst of stations cached together does
// not expire (and re-hit the external API) together.
const (
	successTTL       = 90 * 24 * time.Hour
	successJitter    = 48 * time.Hour
	errorTTL         = 30 * 24 * time.Hour
	errorJitter      = 24 * time.Hour
	usageLimitTTL    = time.Hour
	usageLimitJitter = 10 * time.Minute
)

func jittered(base, jitter time.Duration) time.Duration {
	return base + time.Duration(rand.Int63n(int64(2*jitter))) - jitter
}

// SuccessTTL is the expiry for cached successful payloads (~90 days).
func SuccessTTL() time.Duration { return jittered(successTTL, successJitter) }

// ErrorTTL is the expiry for cached permanent-looking errors (~30 days).
func ErrorTTL() time.Duration { return jittered(errorTTL, errorJitter) }

// UsageLimitTTL is the short back-off expiry for rate-limit markers
// (~1 hour).
func UsageLimitTTL() time.Duration { return jittered(usageLimitTTL, usageLimitJitter) }

// Cache is the Redis-backed key/hash store shared by every adapter.
type Cache struct {
	rdb *redis.Client
}

// New connects to Redis using a redis:// URL.
func New(redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Cache{rdb: redis.NewClient(opts)}, nil
}

// Ping checks the server is reachable. Used by the health endpoint.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Get returns the hash stored at key. A missing key yields an empty map
// and no error.
func (c *Cache) Get(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

// Put stores the hash at key with the given TTL, atomically enough via a
// pipeline.
func (c *Cache) Put(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}
