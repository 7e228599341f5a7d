package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openshorten/openshorten/internal/db"
	"github.com/openshorten/openshorten/internal/observability"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis, *observability.MockMetricsRegistry) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cache := &db.RedisStore{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	metrics := observability.NewMockMetricsRegistry()
	return New(cache, metrics, zaptest.NewLogger(t)), mr, metrics
}

func TestCheckAllowsWithinLimit(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res := l.Check(ctx, "198.51.100.7", "shorten", 5, time.Minute)
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 4-i, res.Remaining)
	}
}

func TestCheckDeniesSixthRequest(t *testing.T) {
	l, _, metrics := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, l.Check(ctx, "198.51.100.7", "shorten", 5, time.Minute).Allowed)
	}

	res := l.Check(ctx, "198.51.100.7", "shorten", 5, time.Minute)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 1, metrics.RateLimitHit["shorten"])
}

func TestCheckFreshWindowResetsCount(t *testing.T) {
	l, mr, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.Check(ctx, "198.51.100.7", "shorten", 5, time.Minute)
	}
	require.False(t, l.Check(ctx, "198.51.100.7", "shorten", 5, time.Minute).Allowed)

	mr.FastForward(61 * time.Second)

	res := l.Check(ctx, "198.51.100.7", "shorten", 5, time.Minute)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
}

func TestCheckSubjectsAndBucketsAreIndependent(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.Check(ctx, "198.51.100.7", "shorten", 5, time.Minute)
	}

	assert.True(t, l.Check(ctx, "203.0.113.9", "shorten", 5, time.Minute).Allowed)
	assert.True(t, l.Check(ctx, "198.51.100.7", "report", 5, time.Minute).Allowed)
}

func TestCheckFailsOpenWhenCacheUnreachable(t *testing.T) {
	l, mr, metrics := newTestLimiter(t)
	mr.Close()

	res := l.Check(context.Background(), "198.51.100.7", "shorten", 5, time.Minute)
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.Remaining)
	assert.Equal(t, 1, metrics.Fallbacks["rate_limiter"])
}
