// Package limiter implements a fixed-window rate limiter backed by the
// distributed cache. It fails open: when the cache is unreachable the
// request is allowed, trading strict enforcement for availability.
package limiter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openshorten/openshorten/internal/db"
	"github.com/openshorten/openshorten/internal/observability"
)

// Result is the outcome of a single rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
}

// Limiter counts requests per subject and bucket in fixed windows.
type Limiter struct {
	cache   *db.RedisStore
	metrics observability.MetricsRegistry
	logger  *zap.Logger
}

func New(cache *db.RedisStore, metrics observability.MetricsRegistry, logger *zap.Logger) *Limiter {
	return &Limiter{cache: cache, metrics: metrics, logger: logger}
}

// Check increments the window counter for subject+bucket and reports whether
// the request is within the limit. The first increment of a window sets the
// key's expiry; two concurrent first-requests may both observe count==1 and
// both set it, which at worst extends the window slightly.
func (l *Limiter) Check(ctx context.Context, subject, bucket string, limit int, window time.Duration) Result {
	l.metrics.IncrementRateLimitRequests(bucket)

	key := db.RateLimitKey(subject, bucket)
	count, err := l.cache.Incr(ctx, key)
	if err != nil {
		l.logger.Warn("rate limit cache unavailable, failing open",
			zap.String("bucket", bucket),
			zap.Error(err))
		l.metrics.IncrementCacheFallbacks("rate_limiter")
		return Result{Allowed: true, Remaining: limit}
	}

	if count == 1 {
		if err := l.cache.Expire(ctx, key, window); err != nil {
			l.logger.Warn("rate limit window expiry not set",
				zap.String("bucket", bucket),
				zap.Error(err))
		}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if count > int64(limit) {
		l.metrics.IncrementRateLimitHits(bucket)
		return Result{Allowed: false, Remaining: remaining}
	}
	return Result{Allowed: true, Remaining: remaining}
}
