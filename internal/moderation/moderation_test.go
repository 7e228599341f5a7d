package moderation

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
	"github.com/openshorten/openshorten/internal/models"
	"github.com/openshorten/openshorten/internal/observability"
)

type fixture struct {
	store   *models.MemoryStore
	mr      *miniredis.Miniredis
	cache   *db.RedisStore
	metrics *observability.MockMetricsRegistry
	blocker *IPBlocker
	reports *Reports
	appeals *Appeals
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	f := &fixture{
		store:   models.NewMemoryStore(),
		mr:      mr,
		metrics: observability.NewMockMetricsRegistry(),
		clock:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.cache = &db.RedisStore{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	logger := zaptest.NewLogger(t)

	f.blocker = NewIPBlocker(f.store, f.cache, f.metrics, logger, 1, 720)
	f.reports = NewReports(f.store, f.cache, f.metrics, logger, time.Hour, 3, 2)
	f.appeals = NewAppeals(f.store, f.cache, f.blocker, f.metrics, logger)

	now := func() time.Time { return f.clock }
	f.blocker.now = now
	f.reports.now = now
	f.appeals.now = now
	return f
}

func (f *fixture) addLink(t *testing.T, shortCode string, malicious bool) {
	t.Helper()
	require.NoError(t, f.store.CreateLink(context.Background(), &models.Link{
		ShortCode:   shortCode,
		OriginalURL: "https://example.com/" + shortCode,
		IPAddress:   "198.51.100.1",
		IsMalicious: malicious,
	}))
}

func TestSubmitReportUnknownLink(t *testing.T) {
	f := newFixture(t)

	_, err := f.reports.Submit(context.Background(), "nosuch", "phishing page", "", "", "198.51.100.7")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitReportDuplicateWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLink(t, "abc123", false)

	report, err := f.reports.Submit(ctx, "abc123", "phishing page", "phishing", "", "198.51.100.7")
	require.NoError(t, err)
	// The service clock stamps the report, so the window math below is
	// governed by the fixture clock rather than wall time.
	assert.Equal(t, f.clock, report.CreatedAt)

	_, err = f.reports.Submit(ctx, "abc123", "still phishing", "phishing", "", "198.51.100.7")
	assert.ErrorIs(t, err, ErrDuplicate)

	// Outside the window the same reporter may file again.
	f.clock = f.clock.Add(61 * time.Minute)
	_, err = f.reports.Submit(ctx, "abc123", "still phishing", "phishing", "", "198.51.100.7")
	assert.NoError(t, err)
}

func TestAutoFlagRequiresDistinctReporters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLink(t, "abc123", false)

	// Three pending reports, all from the one address.
	for i := 0; i < 3; i++ {
		_, err := f.reports.Submit(ctx, "abc123", "phishing page", "", "", "198.51.100.7")
		require.NoError(t, err)
		f.clock = f.clock.Add(2 * time.Hour)
	}

	link, err := f.store.GetLink(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, link.IsMalicious, "a single reporter must not force a takedown")
	assert.Equal(t, 0, f.metrics.AutoFlagsTotal)

	// A second distinct reporter satisfies the diversity threshold.
	_, err = f.reports.Submit(ctx, "abc123", "phishing page", "", "", "203.0.113.9")
	require.NoError(t, err)

	link, err = f.store.GetLink(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, link.IsMalicious)
	assert.Equal(t, 1, f.metrics.AutoFlagsTotal)
}

func TestAutoFlagInvalidatesLinkCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLink(t, "abc123", false)
	require.NoError(t, f.mr.Set("link:abc123", `{"short_code":"abc123"}`))

	for i, ip := range []string{"198.51.100.7", "203.0.113.9", "192.0.2.3"} {
		_, err := f.reports.Submit(ctx, "abc123", "malware download", "", "", ip)
		require.NoError(t, err, "report %d", i)
	}

	assert.False(t, f.mr.Exists("link:abc123"))
	assert.Equal(t, 1, f.metrics.AutoFlagsTotal)
}

func TestResolveReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLink(t, "abc123", false)

	report, err := f.reports.Submit(ctx, "abc123", "phishing page", "", "", "198.51.100.7")
	require.NoError(t, err)

	_, err = f.reports.Resolve(ctx, report.ID, "escalated")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	resolved, err := f.reports.Resolve(ctx, report.ID, models.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	link, err := f.store.GetLink(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, link.IsMalicious)

	_, err = f.reports.Resolve(ctx, report.ID, models.StatusRejected)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestResolveReportUnknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.reports.Resolve(context.Background(), "d9f0c5bb-0000-4000-8000-000000000000", models.StatusApproved)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlockRejectsInternalAddresses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.1.1", "172.16.0.5", "fe80::1", "fd00::1", "::1", "::ffff:10.0.0.1", "not-an-ip"} {
		_, err := f.blocker.Block(ctx, ip, "abuse", 24)
		assert.ErrorIs(t, err, ErrIneligibleIP, "ip %s", ip)
	}
}

func TestBlockClampsDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	block, err := f.blocker.Block(ctx, "198.51.100.7", "abuse", 10000)
	require.NoError(t, err)
	require.NotNil(t, block.ExpiresAt)
	assert.Equal(t, f.clock.Add(720*time.Hour), *block.ExpiresAt)

	block, err = f.blocker.Block(ctx, "203.0.113.9", "abuse", 0)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Add(time.Hour), *block.ExpiresAt)
}

func TestReblockUpdatesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.blocker.Block(ctx, "198.51.100.7", "spam", 24)
	require.NoError(t, err)
	_, err = f.blocker.Block(ctx, "198.51.100.7", "repeat abuse", 48)
	require.NoError(t, err)

	blocks, err := f.blocker.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "repeat abuse", blocks[0].Reason)
	assert.Equal(t, f.clock.Add(48*time.Hour), *blocks[0].ExpiresAt)
}

func TestUnblockIsIdempotent(t *testing.T) {
	f := newFixture(t)

	assert.NoError(t, f.blocker.Unblock(context.Background(), "198.51.100.7"))
}

func TestIsBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.False(t, f.blocker.IsBlocked(ctx, "198.51.100.7"))

	_, err := f.blocker.Block(ctx, "198.51.100.7", "abuse", 24)
	require.NoError(t, err)
	assert.True(t, f.blocker.IsBlocked(ctx, "198.51.100.7"))

	// Evicted cache flag still resolves against the durable record.
	f.mr.FlushAll()
	assert.True(t, f.blocker.IsBlocked(ctx, "198.51.100.7"))

	require.NoError(t, f.blocker.Unblock(ctx, "198.51.100.7"))
	assert.False(t, f.blocker.IsBlocked(ctx, "198.51.100.7"))
}

func TestIsBlockedExpiryWithoutWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.blocker.Block(ctx, "198.51.100.7", "abuse", 1)
	require.NoError(t, err)

	f.clock = f.clock.Add(2 * time.Hour)
	f.mr.FastForward(2 * time.Hour)

	assert.False(t, f.blocker.IsBlocked(ctx, "198.51.100.7"))
}

func TestIsBlockedFallsBackWhenCacheDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.blocker.Block(ctx, "198.51.100.7", "abuse", 24)
	require.NoError(t, err)

	f.mr.Close()

	assert.True(t, f.blocker.IsBlocked(ctx, "198.51.100.7"))
	assert.Equal(t, 1, f.metrics.Fallbacks["ip_block"])
}

func TestLinkAppealRequiresFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLink(t, "abc123", false)

	_, err := f.appeals.SubmitLinkAppeal(ctx, "abc123", "false positive", "", "198.51.100.7")
	assert.ErrorIs(t, err, ErrNotFlagged)
}

func TestLinkAppealFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLink(t, "abc123", true)
	require.NoError(t, f.mr.Set("link:abc123", `{"short_code":"abc123"}`))

	appeal, err := f.appeals.SubmitLinkAppeal(ctx, "abc123", "this is my legitimate site", "me@example.com", "198.51.100.7")
	require.NoError(t, err)

	_, err = f.appeals.SubmitLinkAppeal(ctx, "abc123", "again", "", "198.51.100.7")
	assert.ErrorIs(t, err, ErrDuplicate)

	resolved, err := f.appeals.ResolveLinkAppeal(ctx, appeal.ID, models.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, resolved.Status)

	link, err := f.store.GetLink(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, link.IsMalicious)
	assert.False(t, f.mr.Exists("link:abc123"), "approval must invalidate the cache mirror")

	_, err = f.appeals.ResolveLinkAppeal(ctx, appeal.ID, models.StatusRejected)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestIPAppealRequiresActiveBlock(t *testing.T) {
	f := newFixture(t)

	_, err := f.appeals.SubmitIPAppeal(context.Background(), "198.51.100.7", "not me", "", "203.0.113.9")
	assert.ErrorIs(t, err, ErrNotBlocked)
}

func TestIPAppealFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.blocker.Block(ctx, "198.51.100.7", "abuse", 24)
	require.NoError(t, err)

	appeal, err := f.appeals.SubmitIPAppeal(ctx, "198.51.100.7", "shared NAT address", "", "203.0.113.9")
	require.NoError(t, err)

	// A second pending appeal from the same appellant for the same block is
	// rejected.
	_, err = f.appeals.SubmitIPAppeal(ctx, "198.51.100.7", "please", "", "203.0.113.9")
	assert.ErrorIs(t, err, ErrDuplicate)

	resolved, err := f.appeals.ResolveIPAppeal(ctx, appeal.ID, models.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, resolved.Status)

	assert.False(t, f.blocker.IsBlocked(ctx, "198.51.100.7"))

	block, err := f.store.GetIPBlock(ctx, "198.51.100.7")
	require.NoError(t, err)
	assert.Equal(t, models.BlockRemoved, block.Status)
}

func TestIPAppealRejectionKeepsBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.blocker.Block(ctx, "198.51.100.7", "abuse", 24)
	require.NoError(t, err)

	appeal, err := f.appeals.SubmitIPAppeal(ctx, "198.51.100.7", "shared NAT address", "", "203.0.113.9")
	require.NoError(t, err)

	_, err = f.appeals.ResolveIPAppeal(ctx, appeal.ID, models.StatusRejected)
	require.NoError(t, err)

	assert.True(t, f.blocker.IsBlocked(ctx, "198.51.100.7"))
}
