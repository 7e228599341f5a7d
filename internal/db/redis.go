package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheUnavailable is returned by cache operations when no Redis client is
// configured. Callers apply their component's failure policy instead of
// treating it as fatal.
var ErrCacheUnavailable = errors.New("cache unavailable")

// RedisStore wraps a redis client. A nil RedisStore (or one with a nil
// client) is a valid "no cache" configuration: every operation reports
// ErrCacheUnavailable and the durable store remains authoritative.
type RedisStore struct {
	Client *redis.Client
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// Available reports whether a cache client is configured.
func (r *RedisStore) Available() bool {
	return r != nil && r.Client != nil
}

// Get returns the string value at key. Missing keys return ("", false, nil).
func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if !r.Available() {
		return "", false, ErrCacheUnavailable
	}
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set stores value at key with the given TTL. A zero TTL means no expiry.
func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if !r.Available() {
		return ErrCacheUnavailable
	}
	return r.Client.Set(ctx, key, value, ttl).Err()
}

// Delete removes a key. Deleting a missing key is a success.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if !r.Available() {
		return ErrCacheUnavailable
	}
	return r.Client.Del(ctx, key).Err()
}

// Incr increments the counter at key and returns the post-increment value.
func (r *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	if !r.Available() {
		return 0, ErrCacheUnavailable
	}
	return r.Client.Incr(ctx, key).Result()
}

// Expire sets the TTL on an existing key.
func (r *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if !r.Available() {
		return ErrCacheUnavailable
	}
	return r.Client.Expire(ctx, key, ttl).Err()
}

// Cache key layout. All entries are disposable projections of the durable
// store; losing them costs latency, never correctness.
func LinkKey(shortCode string) string      { return "link:" + shortCode }
func AnalyticsKey(shortCode string) string { return "analytics:" + shortCode }
func BlocklistKey(ip string) string        { return "blocklist:ip:" + ip }
func SettingKey(key string) string         { return "setting:" + key }

// RateLimitKey builds the fixed-window counter key for a subject and bucket.
func RateLimitKey(subject, bucket string) string {
	return fmt.Sprintf("ratelimit:%s:%s", subject, bucket)
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
