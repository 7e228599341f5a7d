package admin

import (
	"context"
	"strings"
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
	"github.com/openshorten/openshorten/internal/settings"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newService(t *testing.T, adminKey string) (*Service, *models.MemoryStore) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store := models.NewMemoryStore()
	cache := &db.RedisStore{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	logger := zaptest.NewLogger(t)
	pm := settings.NewPanicMode(store, cache, observability.NewMockMetricsRegistry(), logger, 30*time.Second, 30*time.Second)

	return NewService(store, pm, logger, adminKey, 32), store
}

func TestValidateKey(t *testing.T) {
	svc, _ := newService(t, testKey)

	assert.True(t, svc.ValidateKey(testKey))
	assert.False(t, svc.ValidateKey("wrong"))
	assert.False(t, svc.ValidateKey(""))
	assert.False(t, svc.ValidateKey(testKey+"x"))
}

func TestValidateKeyRefusesShortConfiguredKey(t *testing.T) {
	svc, _ := newService(t, "short")

	// A misconfigured key disables admin access, even for an exact match.
	assert.False(t, svc.ValidateKey("short"))
}

func TestStats(t *testing.T) {
	svc, store := newService(t, testKey)
	ctx := context.Background()

	require.NoError(t, store.CreateLink(ctx, &models.Link{ShortCode: "abc123", OriginalURL: "https://example.com", IPAddress: "198.51.100.7", UserID: "user-1"}))
	// Same person, identified by user ID, posting from a second address.
	require.NoError(t, store.CreateLink(ctx, &models.Link{ShortCode: "def456", OriginalURL: "https://example.com/2", IPAddress: "198.51.100.8", UserID: "user-1"}))
	require.NoError(t, store.CreateLink(ctx, &models.Link{ShortCode: "ghi789", OriginalURL: "https://example.com/3", IPAddress: "198.51.100.9"}))
	require.NoError(t, store.RecordVisit(ctx, "abc123", models.Visit{IPAddress: "203.0.113.9", Timestamp: time.Now()}))
	require.NoError(t, store.UpsertSetting(ctx, settings.PanicModeKey, "true"))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalLinks)
	assert.Equal(t, int64(1), stats.TotalClicks)
	assert.Equal(t, int64(1), stats.TotalVisits)
	assert.Equal(t, int64(2), stats.ActiveUsers)
	assert.True(t, stats.PanicMode)
}

func TestLinksPagination(t *testing.T) {
	svc, store := newService(t, testKey)
	ctx := context.Background()

	base := time.Now()
	for i, code := range []string{"aaa111", "bbb222", "ccc333"} {
		require.NoError(t, store.CreateLink(ctx, &models.Link{
			ShortCode:   code,
			OriginalURL: "https://example.com/" + code,
			IPAddress:   "198.51.100.7",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, total, err := svc.Links(ctx, "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, "ccc333", page[0].ShortCode) // newest first

	page, _, err = svc.Links(ctx, "", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "aaa111", page[0].ShortCode)

	// Out-of-range values are clamped, not rejected.
	page, _, err = svc.Links(ctx, "", 0, 1000)
	require.NoError(t, err)
	assert.Len(t, page, 3)
}

func TestLinksSearch(t *testing.T) {
	svc, store := newService(t, testKey)
	ctx := context.Background()

	require.NoError(t, store.CreateLink(ctx, &models.Link{ShortCode: "abc123", OriginalURL: "https://example.com/docs", IPAddress: "198.51.100.7"}))
	require.NoError(t, store.CreateLink(ctx, &models.Link{ShortCode: "xyz789", OriginalURL: "https://other.example/blog", IPAddress: "198.51.100.7"}))

	page, total, err := svc.Links(ctx, "docs", 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, page, 1)
	assert.Equal(t, "abc123", page[0].ShortCode)

	page, total, err = svc.Links(ctx, strings.ToUpper("xyz"), 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, page, 1)
	assert.Equal(t, "xyz789", page[0].ShortCode)
}
