package moderation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openshorten/openshorten/internal/db"
	"github.com/openshorten/openshorten/internal/models"
	"github.com/openshorten/openshorten/internal/observability"
)

// Appeals handles both kinds of appeal: against a link's malicious flag and
// against an IP block.
type Appeals struct {
	store   models.Store
	cache   *db.RedisStore
	blocker *IPBlocker
	metrics observability.MetricsRegistry
	logger  *zap.Logger
	now     func() time.Time
}

func NewAppeals(store models.Store, cache *db.RedisStore, blocker *IPBlocker, metrics observability.MetricsRegistry, logger *zap.Logger) *Appeals {
	return &Appeals{
		store:   store,
		cache:   cache,
		blocker: blocker,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// SubmitLinkAppeal records an appeal against a flagged link. The link must
// currently carry the malicious flag, and the same appellant may have only
// one pending appeal per link.
func (a *Appeals) SubmitLinkAppeal(ctx context.Context, shortCode, reason, contactInfo, appellantIP string) (*models.Appeal, error) {
	link, err := a.store.GetLink(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrNotFound
	}
	if !link.IsMalicious {
		return nil, ErrNotFlagged
	}

	existing, err := a.store.FindPendingAppeal(ctx, shortCode, appellantIP)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicate
	}

	appeal := &models.Appeal{
		ID:          uuid.NewString(),
		ShortCode:   shortCode,
		Reason:      reason,
		AppellantIP: appellantIP,
		ContactInfo: contactInfo,
		Status:      models.StatusPending,
	}
	if err := a.store.CreateAppeal(ctx, appeal); err != nil {
		return nil, err
	}

	a.metrics.IncrementAppeals("url")
	a.logger.Info("link appeal submitted", zap.String("short_code", shortCode))
	return appeal, nil
}

// SubmitIPAppeal records an appeal against an IP block. The target address
// must have an active block record.
func (a *Appeals) SubmitIPAppeal(ctx context.Context, ip, reason, contactInfo, appellantIP string) (*models.IPAppeal, error) {
	block, err := a.store.GetIPBlock(ctx, ip)
	if err != nil {
		return nil, err
	}
	if block == nil || block.Status != models.BlockActive {
		return nil, ErrNotBlocked
	}

	existing, err := a.store.FindPendingIPAppeal(ctx, ip, appellantIP)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicate
	}

	appeal := &models.IPAppeal{
		ID:          uuid.NewString(),
		IPAddress:   ip,
		Reason:      reason,
		AppellantIP: appellantIP,
		ContactInfo: contactInfo,
		Status:      models.StatusPending,
	}
	if err := a.store.CreateIPAppeal(ctx, appeal); err != nil {
		return nil, err
	}

	a.metrics.IncrementAppeals("ip")
	a.logger.Info("ip appeal submitted", zap.String("ip", ip))
	return appeal, nil
}

// ResolveLinkAppeal moves a pending link appeal to approved or rejected.
// Approval clears the link's malicious flag and invalidates its cache mirror
// so the change takes effect on the next redirect.
func (a *Appeals) ResolveLinkAppeal(ctx context.Context, id, status string) (*models.Appeal, error) {
	if status != models.StatusApproved && status != models.StatusRejected {
		return nil, ErrInvalidStatus
	}

	appeal, err := a.store.GetAppeal(ctx, id)
	if err != nil {
		return nil, err
	}
	if appeal == nil {
		return nil, ErrNotFound
	}
	if appeal.Status != models.StatusPending {
		return nil, ErrAlreadyResolved
	}

	if status == models.StatusApproved {
		if err := a.store.SetLinkMalicious(ctx, appeal.ShortCode, false); err != nil && err != models.ErrNotFound {
			return nil, err
		}
		if err := a.cache.Delete(ctx, db.LinkKey(appeal.ShortCode)); err != nil {
			a.logger.Warn("link cache invalidation failed",
				zap.String("short_code", appeal.ShortCode),
				zap.Error(err))
		}
	}

	resolvedAt := a.now()
	if err := a.store.ResolveAppeal(ctx, id, status, resolvedAt); err != nil {
		return nil, err
	}
	appeal.Status = status
	appeal.ResolvedAt = &resolvedAt

	a.logger.Info("link appeal resolved",
		zap.String("appeal_id", id),
		zap.String("short_code", appeal.ShortCode),
		zap.String("status", status))
	return appeal, nil
}

// ResolveIPAppeal moves a pending IP appeal to approved or rejected.
// Approval unblocks the address.
func (a *Appeals) ResolveIPAppeal(ctx context.Context, id, status string) (*models.IPAppeal, error) {
	if status != models.StatusApproved && status != models.StatusRejected {
		return nil, ErrInvalidStatus
	}

	appeal, err := a.store.GetIPAppeal(ctx, id)
	if err != nil {
		return nil, err
	}
	if appeal == nil {
		return nil, ErrNotFound
	}
	if appeal.Status != models.StatusPending {
		return nil, ErrAlreadyResolved
	}

	if status == models.StatusApproved {
		if err := a.blocker.Unblock(ctx, appeal.IPAddress); err != nil {
			return nil, err
		}
	}

	resolvedAt := a.now()
	if err := a.store.ResolveIPAppeal(ctx, id, status, resolvedAt); err != nil {
		return nil, err
	}
	appeal.Status = status
	appeal.ResolvedAt = &resolvedAt

	a.logger.Info("ip appeal resolved",
		zap.String("appeal_id", id),
		zap.String("ip", appeal.IPAddress),
		zap.String("status", status))
	return appeal, nil
}

// ListPendingLinkAppeals returns link appeals awaiting review.
func (a *Appeals) ListPendingLinkAppeals(ctx context.Context, limit int) ([]models.Appeal, error) {
	return a.store.ListPendingAppeals(ctx, limit)
}

// ListPendingIPAppeals returns IP appeals awaiting review.
func (a *Appeals) ListPendingIPAppeals(ctx context.Context, limit int) ([]models.IPAppeal, error) {
	return a.store.ListPendingIPAppeals(ctx, limit)
}
