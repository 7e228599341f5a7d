package moderation

import (
	"context"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/openshorten/openshorten/internal/db"
	"github.com/openshorten/openshorten/internal/models"
	"github.com/openshorten/openshorten/internal/observability"
)

// IPBlocker manages address-level bans. The durable store is authoritative;
// the cache holds a TTL'd flag per blocked address so the hot path avoids a
// database read per request.
type IPBlocker struct {
	store   models.Store
	cache   *db.RedisStore
	metrics observability.MetricsRegistry
	logger  *zap.Logger
	now     func() time.Time

	minHours, maxHours int
}

func NewIPBlocker(store models.Store, cache *db.RedisStore, metrics observability.MetricsRegistry, logger *zap.Logger, minHours, maxHours int) *IPBlocker {
	return &IPBlocker{
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,

		minHours: minHours,
		maxHours: maxHours,
	}
}

// IsBlocked checks the cache flag first and falls back to the durable record
// when the cache is unavailable. Unparsable addresses are never blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	if _, err := netip.ParseAddr(ip); err != nil {
		return false
	}

	_, ok, err := b.cache.Get(ctx, db.BlocklistKey(ip))
	if err == nil {
		if ok {
			return true
		}
		// A cache miss is not authoritative: the flag may have been evicted
		// while the durable block is still in force.
	} else {
		b.logger.Warn("ip block cache read failed, falling back to store",
			zap.String("ip", ip),
			zap.Error(err))
		b.metrics.IncrementCacheFallbacks("ip_block")
	}

	block, err := b.store.GetIPBlock(ctx, ip)
	if err != nil {
		b.logger.Error("ip block durable read failed", zap.String("ip", ip), zap.Error(err))
		return false
	}
	return block.ActiveAt(b.now())
}

// Block upserts a durable block record and sets the cache flag. Reblocking
// an already blocked address refreshes reason, expiry and blocked_at rather
// than creating a second record. Internal and loopback addresses are
// categorically ineligible, guarding against self-lockout.
func (b *IPBlocker) Block(ctx context.Context, ip, reason string, durationHours int) (*models.IPBlock, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil || isInternal(addr.Unmap()) {
		return nil, ErrIneligibleIP
	}

	if durationHours < b.minHours {
		durationHours = b.minHours
	}
	if durationHours > b.maxHours {
		durationHours = b.maxHours
	}

	now := b.now()
	expires := now.Add(time.Duration(durationHours) * time.Hour)
	block := &models.IPBlock{
		IPAddress: ip,
		Reason:    reason,
		Status:    models.BlockActive,
		BlockedAt: now,
		ExpiresAt: &expires,
	}
	if err := b.store.UpsertIPBlock(ctx, block); err != nil {
		return nil, err
	}

	if err := b.cache.Set(ctx, db.BlocklistKey(ip), "1", time.Duration(durationHours)*time.Hour); err != nil {
		b.logger.Warn("ip block cache flag not set", zap.String("ip", ip), zap.Error(err))
	}

	b.metrics.IncrementIPBlocks("block")
	b.logger.Info("ip blocked",
		zap.String("ip", ip),
		zap.String("reason", reason),
		zap.Int("duration_hours", durationHours))
	return block, nil
}

// Unblock soft-removes the durable record and deletes the cache flag.
// Unblocking an address that is not blocked is a success.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) error {
	if err := b.store.RemoveIPBlock(ctx, ip); err != nil {
		return err
	}
	if err := b.cache.Delete(ctx, db.BlocklistKey(ip)); err != nil {
		b.logger.Warn("ip block cache flag not deleted", zap.String("ip", ip), zap.Error(err))
	}

	b.metrics.IncrementIPBlocks("unblock")
	b.logger.Info("ip unblocked", zap.String("ip", ip))
	return nil
}

// ListActive returns the active durable block records.
func (b *IPBlocker) ListActive(ctx context.Context) ([]models.IPBlock, error) {
	return b.store.ListActiveIPBlocks(ctx)
}

// isInternal reports whether the address belongs to a range that must never
// be blocked: loopback, RFC1918 private, ULA, and link-local.
func isInternal(addr netip.Addr) bool {
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}
