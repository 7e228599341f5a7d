package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openshorten/openshorten/internal/db"
	"github.com/openshorten/openshorten/internal/models"
	"github.com/openshorten/openshorten/internal/observability"
)

type panicFixture struct {
	pm    *PanicMode
	store *models.MemoryStore
	mr    *miniredis.Miniredis
	clock time.Time
}

func newPanicFixture(t *testing.T) *panicFixture {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	f := &panicFixture{
		store: models.NewMemoryStore(),
		mr:    mr,
		clock: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	cache := &db.RedisStore{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	f.pm = NewPanicMode(f.store, cache, observability.NewMockMetricsRegistry(), zaptest.NewLogger(t), 30*time.Second, 30*time.Second)
	f.pm.now = func() time.Time { return f.clock }
	return f
}

func TestEnabledReadsDurableAndPopulatesTiers(t *testing.T) {
	f := newPanicFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertSetting(ctx, PanicModeKey, "true"))

	assert.True(t, f.pm.Enabled(ctx))

	cached, err := f.mr.Get("setting:panic_mode")
	require.NoError(t, err)
	assert.Equal(t, "true", cached)
}

func TestEnabledDefaultsFalseWhenUnset(t *testing.T) {
	f := newPanicFixture(t)

	assert.False(t, f.pm.Enabled(context.Background()))
}

func TestEnabledServesLocalCellUntilTTL(t *testing.T) {
	f := newPanicFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertSetting(ctx, PanicModeKey, "true"))
	require.True(t, f.pm.Enabled(ctx))

	// A direct durable write (no Toggle) is invisible until the local cell
	// expires.
	require.NoError(t, f.store.UpsertSetting(ctx, PanicModeKey, "false"))
	f.mr.FlushAll()
	assert.True(t, f.pm.Enabled(ctx))

	f.clock = f.clock.Add(31 * time.Second)
	assert.False(t, f.pm.Enabled(ctx))
}

func TestEnabledServesDistributedTierWhenStoreDown(t *testing.T) {
	f := newPanicFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertSetting(ctx, PanicModeKey, "true"))
	require.True(t, f.pm.Enabled(ctx)) // populates the distributed tier

	f.store.Failing = errors.New("db down")
	f.clock = f.clock.Add(31 * time.Second) // expire the local cell only

	assert.True(t, f.pm.Enabled(ctx))
}

func TestToggleInvalidatesBothTiers(t *testing.T) {
	f := newPanicFixture(t)
	ctx := context.Background()
	require.False(t, f.pm.Enabled(ctx))

	require.NoError(t, f.pm.Toggle(ctx, true))
	assert.False(t, f.mr.Exists("setting:panic_mode"), "toggle should delete the distributed tier")

	// Visible immediately, well inside the old local TTL.
	assert.True(t, f.pm.Enabled(ctx))

	require.NoError(t, f.pm.Toggle(ctx, false))
	assert.False(t, f.pm.Enabled(ctx))
}

func TestToggleSurfacesDurableWriteFailure(t *testing.T) {
	f := newPanicFixture(t)
	f.store.Failing = errors.New("db down")

	assert.Error(t, f.pm.Toggle(context.Background(), true))
}

func TestEnabledFailsOpenWhenEverythingDown(t *testing.T) {
	f := newPanicFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertSetting(ctx, PanicModeKey, "true"))

	f.mr.Close()
	f.store.Failing = errors.New("db down")

	assert.False(t, f.pm.Enabled(ctx))
}

func TestEnabledFallsBackToDurableWhenCacheDown(t *testing.T) {
	f := newPanicFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertSetting(ctx, PanicModeKey, "true"))

	f.mr.Close()

	assert.True(t, f.pm.Enabled(ctx))
}
