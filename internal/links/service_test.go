package links

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openshorten/openshorten/internal/db"
	"github.com/openshorten/openshorten/internal/events"
	"github.com/openshorten/openshorten/internal/models"
	"github.com/openshorten/openshorten/internal/observability"
)

type fixture struct {
	svc   *Service
	store *models.MemoryStore
	mr    *miniredis.Miniredis
	sink  *events.MockEvents
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	f := &fixture{
		store: models.NewMemoryStore(),
		mr:    mr,
		sink:  events.NewMockEvents(),
		clock: time.Now().Truncate(time.Second),
	}
	cache := &db.RedisStore{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	f.svc = NewService(f.store, cache, f.sink, nil, observability.NewMockMetricsRegistry(), zaptest.NewLogger(t), Options{
		BaseURL:         "https://sho.rt",
		LinkCacheTTL:    time.Hour,
		AnalyticsTTL:    5 * time.Minute,
		DuplicateWindow: 24 * time.Hour,
		MaxURLLength:    2048,
		CodeLength:      6,
	})
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func TestShortenCreatesLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.svc.Shorten(ctx, "https://example.com/page", "198.51.100.7", "user-1")
	require.NoError(t, err)

	assert.Len(t, link.ShortCode, 6)
	assert.Equal(t, "https://example.com/page", link.OriginalURL)
	assert.Equal(t, 0, link.SafetyScore)
	assert.Equal(t, "Safe URL", link.SafetyCategory)
	assert.False(t, link.IsMalicious)
	assert.Equal(t, "https://sho.rt/"+link.ShortCode, f.svc.ShortURL(link.ShortCode))

	cached, err := f.mr.Get("link:" + link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", cached)
}

func TestShortenAddsSchemeWhenMissing(t *testing.T) {
	f := newFixture(t)

	link, err := f.svc.Shorten(context.Background(), "example.com/page", "198.51.100.7", "")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", link.OriginalURL)
}

func TestShortenRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Shorten(ctx, "", "198.51.100.7", "")
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = f.svc.Shorten(ctx, "ftp://example.com/file", "198.51.100.7", "")
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = f.svc.Shorten(ctx, "https://example.com/"+strings.Repeat("a", 3000), "198.51.100.7", "")
	assert.ErrorIs(t, err, ErrURLTooLong)
}

func TestShortenRejectsUnsafeURL(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Shorten(context.Background(), "https://accounts-google.secure-login.xyz/verify-account", "198.51.100.7", "")

	var unsafeErr *UnsafeURLError
	require.ErrorAs(t, err, &unsafeErr)
	assert.GreaterOrEqual(t, unsafeErr.Assessment.Score, 70)
}

func TestShortenReportsCodeExhaustion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.codeLength = 1

	// With single-character codes the whole space can be occupied, so every
	// allocation attempt collides.
	for i := 0; i < len(codeAlphabet); i++ {
		require.NoError(t, f.store.CreateLink(ctx, &models.Link{
			ShortCode:   string(codeAlphabet[i]),
			OriginalURL: "https://example.com/taken/" + string(codeAlphabet[i]),
			IPAddress:   "198.51.100.1",
		}))
	}

	_, err := f.svc.Shorten(ctx, "https://example.com/fresh", "198.51.100.7", "")
	assert.ErrorIs(t, err, ErrCodeExhausted)
}

func TestShortenReturnsRecentDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Shorten(ctx, "https://example.com/page", "198.51.100.7", "user-1")
	require.NoError(t, err)

	again, err := f.svc.Shorten(ctx, "https://example.com/page", "198.51.100.7", "user-1")
	require.NoError(t, err)
	assert.Equal(t, first.ShortCode, again.ShortCode)

	// A different creator gets their own code.
	other, err := f.svc.Shorten(ctx, "https://example.com/page", "203.0.113.9", "user-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ShortCode, other.ShortCode)

	// Outside the window the same creator gets a fresh code too.
	f.clock = f.clock.Add(25 * time.Hour)
	fresh, err := f.svc.Shorten(ctx, "https://example.com/page", "198.51.100.7", "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ShortCode, fresh.ShortCode)
}

func TestResolveRedirectsAndRecordsVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.svc.Shorten(ctx, "https://example.com/page", "198.51.100.7", "")
	require.NoError(t, err)

	target, err := f.svc.Resolve(ctx, link.ShortCode, "203.0.113.9", "Mozilla/5.0 (Windows NT 10.0)", "https://ref.example")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", target)

	require.Eventually(t, func() bool {
		a, err := f.store.GetLinkAnalytics(ctx, link.ShortCode)
		return err == nil && a != nil && a.Clicks == 1 && a.UniqueVisitors == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(f.sink.Recorded()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	ev := f.sink.Recorded()[0]
	assert.Equal(t, link.ShortCode, ev.ShortCode)
	assert.Equal(t, "desktop", ev.Device)
}

func TestResolveRepeatVisitorNotUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.svc.Shorten(ctx, "https://example.com/page", "198.51.100.7", "")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := f.svc.Resolve(ctx, link.ShortCode, "203.0.113.9", "", "")
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		a, err := f.store.GetLinkAnalytics(ctx, link.ShortCode)
		return err == nil && a != nil && a.Clicks == 2
	}, 2*time.Second, 10*time.Millisecond)

	a, err := f.store.GetLinkAnalytics(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.UniqueVisitors)
}

func TestResolveUnknownCode(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Resolve(context.Background(), "nosuch1", "203.0.113.9", "", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveExpiredLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired := f.clock.Add(-time.Hour)
	require.NoError(t, f.store.CreateLink(ctx, &models.Link{
		ShortCode:   "old123",
		OriginalURL: "https://example.com/old",
		IPAddress:   "198.51.100.7",
		ExpiresAt:   &expired,
	}))

	_, err := f.svc.Resolve(ctx, "old123", "203.0.113.9", "", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveMaliciousLinkGoesToWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.svc.Shorten(ctx, "https://example.com/page", "198.51.100.7", "")
	require.NoError(t, err)
	require.NoError(t, f.store.SetLinkMalicious(ctx, link.ShortCode, true))

	target, err := f.svc.Resolve(ctx, link.ShortCode, "203.0.113.9", "", "")
	require.NoError(t, err)
	assert.Equal(t, "https://sho.rt/warning?code="+link.ShortCode, target)

	// Warning interstitials are not counted as clicks.
	a, err := f.store.GetLinkAnalytics(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.Clicks)
}

func TestResolveDropsStaleCacheEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.svc.Shorten(ctx, "https://example.com/page", "198.51.100.7", "")
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteLink(ctx, link.ShortCode))

	_, err = f.svc.Resolve(ctx, link.ShortCode, "203.0.113.9", "", "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, f.mr.Exists("link:"+link.ShortCode))
}

func TestResolveSurvivesCacheOutage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.svc.Shorten(ctx, "https://example.com/page", "198.51.100.7", "")
	require.NoError(t, err)

	f.mr.Close()

	target, err := f.svc.Resolve(ctx, link.ShortCode, "203.0.113.9", "", "")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", target)
}

func TestAnalyticsView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.svc.Shorten(ctx, "https://example.com/page", "198.51.100.7", "")
	require.NoError(t, err)
	require.NoError(t, f.store.RecordVisit(ctx, link.ShortCode, models.Visit{IPAddress: "203.0.113.9", Timestamp: f.clock}))

	view, err := f.svc.Analytics(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Clicks)
	assert.Equal(t, int64(1), view.UniqueVisitors)
	assert.Equal(t, "https://example.com/page", view.OriginalURL)

	// The view is cached: counter movement inside the TTL is not visible.
	require.NoError(t, f.store.RecordVisit(ctx, link.ShortCode, models.Visit{IPAddress: "192.0.2.3", Timestamp: f.clock}))
	view, err = f.svc.Analytics(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Clicks)

	f.mr.FastForward(6 * time.Minute)
	view, err = f.svc.Analytics(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.Clicks)
}

func TestAnalyticsUnknownCode(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Analytics(context.Background(), "nosuch1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteOwned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.svc.Shorten(ctx, "https://example.com/page", "198.51.100.7", "user-1")
	require.NoError(t, err)

	err = f.svc.DeleteOwned(ctx, link.ShortCode, "user-2", "198.51.100.7")
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.svc.DeleteOwned(ctx, link.ShortCode, "user-1", "198.51.100.7"))

	got, err := f.store.GetLink(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, f.mr.Exists("link:"+link.ShortCode))

	// Deleting again is a success.
	assert.NoError(t, f.svc.DeleteOwned(ctx, link.ShortCode, "user-1", "198.51.100.7"))
}

func TestDeleteOwnedAnonymousLinkByIP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.svc.Shorten(ctx, "https://example.com/page", "198.51.100.7", "")
	require.NoError(t, err)

	err = f.svc.DeleteOwned(ctx, link.ShortCode, "", "203.0.113.9")
	assert.ErrorIs(t, err, ErrForbidden)

	assert.NoError(t, f.svc.DeleteOwned(ctx, link.ShortCode, "", "198.51.100.7"))
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Shorten(ctx, "https://example.com/a", "198.51.100.7", "user-1")
	require.NoError(t, err)
	_, err = f.svc.Shorten(ctx, "https://example.com/b", "198.51.100.7", "")
	require.NoError(t, err)

	byUser, err := f.svc.History(ctx, "user-1", "unused", 50)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "https://example.com/a", byUser[0].OriginalURL)

	byIP, err := f.svc.History(ctx, "", "198.51.100.7", 50)
	require.NoError(t, err)
	require.Len(t, byIP, 1)
	assert.Equal(t, "https://example.com/b", byIP[0].OriginalURL)
}

func TestCleanupDeletesOnlyInactiveOldLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := f.clock.Add(-8 * 24 * time.Hour)
	require.NoError(t, f.store.CreateLink(ctx, &models.Link{ShortCode: "stale1", OriginalURL: "https://example.com/a", CreatedAt: old}))
	require.NoError(t, f.store.CreateLink(ctx, &models.Link{ShortCode: "used01", OriginalURL: "https://example.com/b", CreatedAt: old}))
	require.NoError(t, f.store.RecordVisit(ctx, "used01", models.Visit{IPAddress: "203.0.113.9", Timestamp: f.clock}))
	fresh, err := f.svc.Shorten(ctx, "https://example.com/c", "198.51.100.7", "")
	require.NoError(t, err)

	deleted, failed := f.svc.Cleanup(ctx, 7*24*time.Hour)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, 0, failed)

	gone, err := f.store.GetLink(ctx, "stale1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	for _, code := range []string{"used01", fresh.ShortCode} {
		kept, err := f.store.GetLink(ctx, code)
		require.NoError(t, err)
		assert.NotNil(t, kept, "link %s should survive cleanup", code)
	}
}

func TestCleanupToleratesStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.Failing = errors.New("db down")

	deleted, failed := f.svc.Cleanup(context.Background(), 7*24*time.Hour)
	assert.Zero(t, deleted)
	assert.Zero(t, failed)
}
