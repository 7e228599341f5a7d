// Package links implements the shortening core: creating short codes,
// resolving them with a cache in front of the durable store, and recording
// click analytics off the redirect path.
package links

import (
	"context"
	"encoding/json"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/avct/uasurfer"
	"go.uber.org/zap"

	"github.com/openshorten/openshorten/internal/db"
	"github.com/openshorten/openshorten/internal/events"
	"github.com/openshorten/openshorten/internal/geoip"
	"github.com/openshorten/openshorten/internal/models"
	"github.com/openshorten/openshorten/internal/observability"
	"github.com/openshorten/openshorten/internal/safety"
)

var codeSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Service is the link shortening and resolution core.
type Service struct {
	store   models.Store
	cache   *db.RedisStore
	events  events.EventService
	geo     *geoip.GeoIP
	metrics observability.MetricsRegistry
	logger  *zap.Logger
	now     func() time.Time

	baseURL         string
	linkTTL         time.Duration
	analyticsTTL    time.Duration
	duplicateWindow time.Duration
	maxURLLength    int
	codeLength      int
}

// Options carries the tunables for a Service.
type Options struct {
	BaseURL         string
	LinkCacheTTL    time.Duration
	AnalyticsTTL    time.Duration
	DuplicateWindow time.Duration
	MaxURLLength    int
	CodeLength      int
}

func NewService(store models.Store, cache *db.RedisStore, sink events.EventService, geo *geoip.GeoIP, metrics observability.MetricsRegistry, logger *zap.Logger, opts Options) *Service {
	return &Service{
		store:   store,
		cache:   cache,
		events:  sink,
		geo:     geo,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,

		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		linkTTL:         opts.LinkCacheTTL,
		analyticsTTL:    opts.AnalyticsTTL,
		duplicateWindow: opts.DuplicateWindow,
		maxURLLength:    opts.MaxURLLength,
		codeLength:      opts.CodeLength,
	}
}

// ShortURL renders the public URL for a short code.
// CacheAvailable reports whether the redirect cache tier is attached.
func (s *Service) CacheAvailable() bool {
	return s.cache.Available()
}

func (s *Service) ShortURL(code string) string {
	return s.baseURL + "/" + code
}

func (s *Service) warningURL(code string) string {
	return s.baseURL + "/warning?code=" + code
}

// Shorten validates and risk-scores a URL, then creates a link for it. A URL
// the same creator shortened within the duplicate window returns the
// existing link instead of minting a second code.
func (s *Service) Shorten(ctx context.Context, rawURL, ip, userID string) (*models.Link, error) {
	normalized, err := s.normalizeURL(rawURL)
	if err != nil {
		s.metrics.IncrementShortens("invalid")
		return nil, err
	}

	assessment := safety.Assess(normalized)
	s.metrics.RecordRiskScore(assessment.Score)
	if !assessment.Safe {
		s.metrics.IncrementRiskRejections()
		s.metrics.IncrementShortens("rejected")
		s.logger.Info("shorten rejected by risk score",
			zap.Int("score", assessment.Score),
			zap.String("category", assessment.Category),
			zap.String("ip", ip))
		return nil, &UnsafeURLError{Assessment: assessment}
	}

	existing, err := s.store.FindRecentLink(ctx, normalized, userID, s.now().Add(-s.duplicateWindow))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.metrics.IncrementShortens("duplicate")
		return existing, nil
	}

	link := &models.Link{
		OriginalURL:    normalized,
		IPAddress:      ip,
		UserID:         userID,
		SafetyScore:    assessment.Score,
		SafetyCategory: assessment.Category,
		SafetyWarnings: assessment.Warnings,
	}
	for attempt := 0; ; attempt++ {
		code, err := newShortCode(s.codeLength)
		if err != nil {
			return nil, err
		}
		taken, err := s.store.GetLink(ctx, code)
		if err != nil {
			return nil, err
		}
		if taken == nil {
			link.ShortCode = code
			break
		}
		if attempt >= 4 {
			s.logger.Error("short code space exhausted after retries")
			return nil, ErrCodeExhausted
		}
	}
	if err := s.store.CreateLink(ctx, link); err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, db.LinkKey(link.ShortCode), link.OriginalURL, s.linkTTL); err != nil {
		s.logger.Warn("link cache populate failed",
			zap.String("short_code", link.ShortCode),
			zap.Error(err))
	}

	s.metrics.IncrementShortens("created")
	s.logger.Info("link created",
		zap.String("short_code", link.ShortCode),
		zap.Int("safety_score", link.SafetyScore))
	return link, nil
}

// Resolve maps a short code to its redirect target. Flagged links resolve to
// the warning page instead of the destination; expired and unknown codes are
// both ErrNotFound. A successful resolution records the visit off the
// request path.
func (s *Service) Resolve(ctx context.Context, code, ip, userAgent, referer string) (string, error) {
	code = codeSanitizer.ReplaceAllString(strings.TrimSpace(code), "")
	if code == "" {
		s.metrics.IncrementRedirects("not_found")
		return "", ErrNotFound
	}

	originalURL, cached, err := s.cache.Get(ctx, db.LinkKey(code))
	if err != nil {
		s.metrics.IncrementCacheFallbacks("link")
		cached = false
	}

	if cached {
		// The cache mirrors only the destination; the malicious flag is
		// checked against the store so a takedown is never masked by a
		// stale cache entry.
		link, err := s.store.GetLink(ctx, code)
		if err != nil {
			return "", err
		}
		if link == nil || link.Expired(s.now()) {
			return "", s.notFound(ctx, code)
		}
		if link.IsMalicious {
			s.metrics.IncrementRedirects("warning")
			return s.warningURL(code), nil
		}
	} else {
		link, err := s.store.GetLink(ctx, code)
		if err != nil {
			return "", err
		}
		if link == nil || link.Expired(s.now()) {
			s.metrics.IncrementRedirects("not_found")
			return "", ErrNotFound
		}
		originalURL = link.OriginalURL
		if err := s.cache.Set(ctx, db.LinkKey(code), originalURL, s.linkTTL); err != nil {
			s.logger.Warn("link cache populate failed", zap.String("short_code", code), zap.Error(err))
		}
		if link.IsMalicious {
			s.metrics.IncrementRedirects("warning")
			return s.warningURL(code), nil
		}
	}

	s.recordVisitAsync(ctx, code, ip, userAgent, referer)
	s.metrics.IncrementRedirects("ok")
	return originalURL, nil
}

func (s *Service) notFound(ctx context.Context, code string) error {
	// The cache held a code the store no longer knows; drop the stale entry.
	if err := s.cache.Delete(ctx, db.LinkKey(code)); err != nil {
		s.logger.Warn("stale link cache entry not deleted", zap.String("short_code", code), zap.Error(err))
	}
	s.metrics.IncrementRedirects("not_found")
	return ErrNotFound
}

// recordVisitAsync records the click without blocking or failing the
// redirect. Errors are logged and dropped.
func (s *Service) recordVisitAsync(ctx context.Context, code, ip, userAgent, referer string) {
	detached := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(detached, 5*time.Second)
		defer cancel()

		if referer == "" {
			referer = "direct"
		}
		if userAgent == "" {
			userAgent = "unknown"
		}
		visit := models.Visit{
			IPAddress: ip,
			UserAgent: userAgent,
			Referer:   referer,
			Device:    deviceType(userAgent),
			Country:   s.geo.Country(net.ParseIP(ip)),
			Timestamp: s.now(),
		}
		if err := s.store.RecordVisit(ctx, code, visit); err != nil {
			s.logger.Error("visit not recorded", zap.String("short_code", code), zap.Error(err))
		}
		if s.events != nil {
			err := s.events.RecordVisit(ctx, events.VisitEvent{
				Timestamp: visit.Timestamp,
				ShortCode: code,
				IPAddress: ip,
				Device:    visit.Device,
				Country:   visit.Country,
				Referer:   referer,
				Outcome:   "redirect",
			})
			if err != nil && err != events.ErrUnavailable {
				s.logger.Warn("visit event not streamed", zap.String("short_code", code), zap.Error(err))
			}
		}
	}()
}

// AnalyticsView is the per-link analytics readout.
type AnalyticsView struct {
	ShortCode      string     `json:"short_code"`
	OriginalURL    string     `json:"original_url"`
	Clicks         int64      `json:"clicks"`
	UniqueVisitors int64      `json:"unique_visitors"`
	CreatedAt      time.Time  `json:"created_at"`
	LastClickedAt  *time.Time `json:"last_clicked_at,omitempty"`
	IsMalicious    bool       `json:"is_malicious"`
	SafetyScore    int        `json:"safety_score"`
	SafetyCategory string     `json:"safety_category,omitempty"`
	SafetyWarnings []string   `json:"safety_warnings,omitempty"`
}

// Analytics returns the analytics readout for a link, cached briefly since
// counters lag by design anyway.
func (s *Service) Analytics(ctx context.Context, code string) (*AnalyticsView, error) {
	code = codeSanitizer.ReplaceAllString(strings.TrimSpace(code), "")
	if code == "" {
		return nil, ErrNotFound
	}

	if raw, ok, err := s.cache.Get(ctx, db.AnalyticsKey(code)); err == nil && ok {
		var view AnalyticsView
		if err := json.Unmarshal([]byte(raw), &view); err == nil {
			return &view, nil
		}
	}

	link, err := s.store.GetLink(ctx, code)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrNotFound
	}
	view := &AnalyticsView{
		ShortCode:      link.ShortCode,
		OriginalURL:    link.OriginalURL,
		CreatedAt:      link.CreatedAt,
		IsMalicious:    link.IsMalicious,
		SafetyScore:    link.SafetyScore,
		SafetyCategory: link.SafetyCategory,
		SafetyWarnings: link.SafetyWarnings,
	}
	analytics, err := s.store.GetLinkAnalytics(ctx, code)
	if err != nil {
		return nil, err
	}
	if analytics != nil {
		view.Clicks = analytics.Clicks
		view.UniqueVisitors = analytics.UniqueVisitors
		view.LastClickedAt = analytics.LastClickedAt
	}

	if raw, err := json.Marshal(view); err == nil {
		if err := s.cache.Set(ctx, db.AnalyticsKey(code), string(raw), s.analyticsTTL); err != nil {
			s.logger.Warn("analytics cache populate failed", zap.String("short_code", code), zap.Error(err))
		}
	}
	return view, nil
}

// Delete removes a link unconditionally. Deleting an unknown code is a
// success.
func (s *Service) Delete(ctx context.Context, code string) error {
	code = codeSanitizer.ReplaceAllString(strings.TrimSpace(code), "")
	if code == "" {
		return ErrNotFound
	}
	if err := s.store.DeleteLink(ctx, code); err != nil {
		return err
	}
	s.invalidate(ctx, code)
	return nil
}

// DeleteOwned removes a link on behalf of its creator. Ownership is the
// user ID when the link has one, otherwise the creating IP.
func (s *Service) DeleteOwned(ctx context.Context, code, userID, ip string) error {
	code = codeSanitizer.ReplaceAllString(strings.TrimSpace(code), "")
	if code == "" {
		return ErrNotFound
	}
	link, err := s.store.GetLink(ctx, code)
	if err != nil {
		return err
	}
	if link == nil {
		return nil
	}
	if link.UserID != "" {
		if link.UserID != userID {
			return ErrForbidden
		}
	} else if link.IPAddress != ip {
		return ErrForbidden
	}

	if err := s.store.DeleteLink(ctx, code); err != nil {
		return err
	}
	s.invalidate(ctx, code)
	return nil
}

// History lists the caller's links, by user ID when one is present and by
// creating IP otherwise.
func (s *Service) History(ctx context.Context, userID, ip string, limit int) ([]models.Link, error) {
	if userID != "" {
		return s.store.ListLinksByUser(ctx, userID, limit)
	}
	return s.store.ListLinksByIP(ctx, ip, limit)
}

func (s *Service) invalidate(ctx context.Context, code string) {
	for _, key := range []string{db.LinkKey(code), db.AnalyticsKey(code)} {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn("link cache invalidation failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *Service) normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	if s.maxURLLength > 0 && len(raw) > s.maxURLLength {
		return "", ErrURLTooLong
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	return raw, nil
}

func deviceType(userAgent string) string {
	ua := uasurfer.Parse(userAgent)
	switch ua.DeviceType {
	case uasurfer.DevicePhone:
		return "mobile"
	case uasurfer.DeviceTablet:
		return "tablet"
	case uasurfer.DeviceComputer:
		return "desktop"
	case uasurfer.DeviceTV:
		return "tv"
	default:
		return "other"
	}
}
