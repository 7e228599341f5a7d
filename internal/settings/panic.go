// Package settings manages durable system settings and the panic-mode kill
// switch. Panic mode is read on every shorten request, so it sits behind a
// two-tier cache: a process-local cell in front of the distributed cache in
// front of the durable store.
package settings

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openshorten/openshorten/internal/db"
	"github.com/openshorten/openshorten/internal/models"
	"github.com/openshorten/openshorten/internal/observability"
)

// PanicModeKey is the system_settings row holding the flag.
const PanicModeKey = "panic_mode"

// PanicMode serves reads of the panic-mode flag through the two cache tiers
// and writes through to the durable store with explicit invalidation.
// Reads fail open: any tier error is treated as panic mode disabled, never
// as a reason to reject traffic.
type PanicMode struct {
	store   models.Store
	cache   *db.RedisStore
	metrics observability.MetricsRegistry
	logger  *zap.Logger

	localTTL time.Duration
	cacheTTL time.Duration
	now      func() time.Time

	mu        sync.Mutex
	value     bool
	expiresAt time.Time
}

func NewPanicMode(store models.Store, cache *db.RedisStore, metrics observability.MetricsRegistry, logger *zap.Logger, localTTL, cacheTTL time.Duration) *PanicMode {
	return &PanicMode{
		store:    store,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		localTTL: localTTL,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Enabled reports whether panic mode is on. Reads may be stale by up to the
// local TTL; toggles invalidate both tiers so they converge faster after a
// write.
func (p *PanicMode) Enabled(ctx context.Context) bool {
	now := p.now()

	p.mu.Lock()
	if now.Before(p.expiresAt) {
		v := p.value
		p.mu.Unlock()
		return v
	}
	p.mu.Unlock()

	if raw, ok, err := p.cache.Get(ctx, db.SettingKey(PanicModeKey)); err != nil {
		p.logger.Warn("panic mode cache read failed", zap.Error(err))
		p.metrics.IncrementCacheFallbacks("panic_mode")
	} else if ok {
		v := raw == "true"
		p.setLocal(v, now)
		return v
	}

	raw, ok, err := p.store.GetSetting(ctx, PanicModeKey)
	if err != nil {
		p.logger.Error("panic mode durable read failed, failing open", zap.Error(err))
		p.metrics.IncrementCacheFallbacks("panic_mode")
		return false
	}
	v := ok && raw == "true"

	p.setLocal(v, now)
	if err := p.cache.Set(ctx, db.SettingKey(PanicModeKey), strconv.FormatBool(v), p.cacheTTL); err != nil {
		p.logger.Warn("panic mode cache populate failed", zap.Error(err))
	}
	return v
}

// Toggle writes the durable flag, then invalidates both cache tiers so the
// new value is visible on the next read rather than after a TTL window.
func (p *PanicMode) Toggle(ctx context.Context, enabled bool) error {
	if err := p.store.UpsertSetting(ctx, PanicModeKey, strconv.FormatBool(enabled)); err != nil {
		return err
	}

	p.mu.Lock()
	p.expiresAt = time.Time{}
	p.mu.Unlock()

	if err := p.cache.Delete(ctx, db.SettingKey(PanicModeKey)); err != nil {
		p.logger.Warn("panic mode cache invalidate failed", zap.Error(err))
	}

	p.logger.Info("panic mode toggled", zap.Bool("enabled", enabled))
	return nil
}

func (p *PanicMode) setLocal(v bool, now time.Time) {
	p.mu.Lock()
	p.value = v
	p.expiresAt = now.Add(p.localTTL)
	p.mu.Unlock()
}
