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

// Reports accepts abuse reports against links and escalates them. Enough
// pending reports from enough distinct reporters auto-flags the link without
// waiting for an admin.
type Reports struct {
	store   models.Store
	cache   *db.RedisStore
	metrics observability.MetricsRegistry
	logger  *zap.Logger
	now     func() time.Time

	duplicateWindow time.Duration
	autoFlagCount   int
	autoFlagMinIPs  int
}

func NewReports(store models.Store, cache *db.RedisStore, metrics observability.MetricsRegistry, logger *zap.Logger, duplicateWindow time.Duration, autoFlagCount, autoFlagMinIPs int) *Reports {
	return &Reports{
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,

		duplicateWindow: duplicateWindow,
		autoFlagCount:   autoFlagCount,
		autoFlagMinIPs:  autoFlagMinIPs,
	}
}

// Submit records a report against an existing link. A repeat report from the
// same reporter within the duplicate window is rejected. After recording,
// the auto-flag thresholds are evaluated: the link is flagged only when both
// the pending-report count and the distinct-reporter count are reached, so a
// single actor cannot force a takedown by filing repeatedly.
func (r *Reports) Submit(ctx context.Context, shortCode, reason, category, description, reporterIP string) (*models.Report, error) {
	link, err := r.store.GetLink(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrNotFound
	}

	recent, err := r.store.FindRecentReport(ctx, shortCode, reporterIP, r.now().Add(-r.duplicateWindow))
	if err != nil {
		return nil, err
	}
	if recent != nil {
		return nil, ErrDuplicate
	}

	if category == "" {
		category = "other"
	}
	report := &models.Report{
		ID:          uuid.NewString(),
		ShortCode:   shortCode,
		Reason:      reason,
		ReporterIP:  reporterIP,
		Category:    category,
		Description: description,
		Status:      models.StatusPending,
		CreatedAt:   r.now(),
	}
	if err := r.store.CreateReport(ctx, report); err != nil {
		return nil, err
	}
	r.metrics.IncrementReports()

	// Escalation is best-effort: a failure here leaves the report recorded
	// and is caught by the next report or an admin review.
	if err := r.maybeAutoFlag(ctx, shortCode); err != nil {
		r.logger.Error("auto-flag evaluation failed",
			zap.String("short_code", shortCode),
			zap.Error(err))
	}

	return report, nil
}

func (r *Reports) maybeAutoFlag(ctx context.Context, shortCode string) error {
	pending, err := r.store.CountPendingReports(ctx, shortCode)
	if err != nil {
		return err
	}
	if pending < r.autoFlagCount {
		return nil
	}

	distinct, err := r.store.CountDistinctReporters(ctx, shortCode)
	if err != nil {
		return err
	}
	if distinct < r.autoFlagMinIPs {
		return nil
	}

	if err := r.store.SetLinkMalicious(ctx, shortCode, true); err != nil {
		return err
	}
	r.invalidateLinkCache(ctx, shortCode)

	r.metrics.IncrementAutoFlags()
	r.logger.Warn("link auto-flagged",
		zap.String("short_code", shortCode),
		zap.Int("pending_reports", pending),
		zap.Int("distinct_reporters", distinct))
	return nil
}

// Resolve moves a pending report to approved or rejected. Approval marks the
// reported link malicious.
func (r *Reports) Resolve(ctx context.Context, id, status string) (*models.Report, error) {
	if status != models.StatusApproved && status != models.StatusRejected {
		return nil, ErrInvalidStatus
	}

	report, err := r.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, ErrNotFound
	}
	if report.Status != models.StatusPending {
		return nil, ErrAlreadyResolved
	}

	if status == models.StatusApproved {
		if err := r.store.SetLinkMalicious(ctx, report.ShortCode, true); err != nil && err != models.ErrNotFound {
			return nil, err
		}
		r.invalidateLinkCache(ctx, report.ShortCode)
	}

	resolvedAt := r.now()
	if err := r.store.ResolveReport(ctx, id, status, resolvedAt); err != nil {
		return nil, err
	}
	report.Status = status
	report.ResolvedAt = &resolvedAt

	r.logger.Info("report resolved",
		zap.String("report_id", id),
		zap.String("short_code", report.ShortCode),
		zap.String("status", status))
	return report, nil
}

// ListPending returns reports awaiting review, newest first.
func (r *Reports) ListPending(ctx context.Context, limit int) ([]models.Report, error) {
	return r.store.ListPendingReports(ctx, limit)
}

func (r *Reports) invalidateLinkCache(ctx context.Context, shortCode string) {
	if err := r.cache.Delete(ctx, db.LinkKey(shortCode)); err != nil {
		r.logger.Warn("link cache invalidation failed",
			zap.String("short_code", shortCode),
			zap.Error(err))
	}
}
