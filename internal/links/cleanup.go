package links

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cleanup deletes links past the age cutoff that were never clicked. It
// returns the number of links deleted and the number of failed deletions.
func (s *Service) Cleanup(ctx context.Context, maxAge time.Duration) (deleted, failed int) {
	cutoff := s.now().Add(-maxAge)
	stale, err := s.store.ListInactiveLinks(ctx, cutoff)
	if err != nil {
		s.logger.Error("cleanup scan failed", zap.Error(err))
		return 0, 0
	}

	for _, link := range stale {
		if err := s.store.DeleteLink(ctx, link.ShortCode); err != nil {
			s.logger.Error("cleanup delete failed",
				zap.String("short_code", link.ShortCode),
				zap.Error(err))
			failed++
			continue
		}
		s.invalidate(ctx, link.ShortCode)
		deleted++
	}

	if deleted > 0 || failed > 0 {
		s.logger.Info("inactive link cleanup finished",
			zap.Int("deleted", deleted),
			zap.Int("failed", failed),
			zap.Time("cutoff", cutoff))
	}
	return deleted, failed
}

// RunCleanup runs Cleanup on the given interval until the context is
// cancelled. Intended to be launched as a background goroutine at startup.
func (s *Service) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup(ctx, maxAge)
		}
	}
}
