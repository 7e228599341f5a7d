// Package admin implements the authenticated operator surface: key
// validation, system stats, and link management.
package admin

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"time"

	"go.uber.org/zap"

	"github.com/openshorten/openshorten/internal/models"
	"github.com/openshorten/openshorten/internal/settings"
)

const (
	maxPageLimit     = 100
	defaultPageLimit = 50
	// activeUserWindow bounds the "active users" stat to recent creators.
	activeUserWindow = 30 * 24 * time.Hour
)

// Service guards admin operations behind the shared key.
type Service struct {
	store  models.Store
	panic  *settings.PanicMode
	logger *zap.Logger
	now    func() time.Time

	adminKey  []byte
	minKeyLen int
}

func NewService(store models.Store, panicMode *settings.PanicMode, logger *zap.Logger, adminKey string, minKeyLen int) *Service {
	return &Service{
		store:  store,
		panic:  panicMode,
		logger: logger,
		now:    time.Now,

		adminKey:  []byte(adminKey),
		minKeyLen: minKeyLen,
	}
}

// ValidateKey compares the presented key against the configured one in
// constant time. Both sides are hashed first so the comparison length never
// depends on the inputs. A missing or too-short configured key disables
// admin access entirely.
func (s *Service) ValidateKey(key string) bool {
	if len(s.adminKey) < s.minKeyLen {
		s.logger.Error("admin key not configured or too short, admin access disabled")
		return false
	}
	presented := sha256.Sum256([]byte(key))
	configured := sha256.Sum256(s.adminKey)
	return subtle.ConstantTimeCompare(presented[:], configured[:]) == 1
}

// Stats aggregates the dashboard counters, including the current panic-mode
// state.
func (s *Service) Stats(ctx context.Context) (*models.SystemStats, error) {
	stats, err := s.store.Stats(ctx, s.now().Add(-activeUserWindow))
	if err != nil {
		return nil, err
	}
	stats.PanicMode = s.panic.Enabled(ctx)
	return stats, nil
}

// Links returns a page of links matching the optional search query, plus the
// total match count. Page and limit are clamped rather than rejected.
func (s *Service) Links(ctx context.Context, query string, page, limit int) ([]models.Link, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return s.store.SearchLinks(ctx, query, (page-1)*limit, limit)
}
