package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openshorten/openshorten/internal/admin"
	"github.com/openshorten/openshorten/internal/config"
	"github.com/openshorten/openshorten/internal/limiter"
	"github.com/openshorten/openshorten/internal/links"
	"github.com/openshorten/openshorten/internal/middleware"
	"github.com/openshorten/openshorten/internal/moderation"
	"github.com/openshorten/openshorten/internal/observability"
	"github.com/openshorten/openshorten/internal/settings"
)

// Server bundles the HTTP handlers with their service dependencies.
type Server struct {
	Logger  *zap.Logger
	Config  config.Config
	Metrics observability.MetricsRegistry

	Links   *links.Service
	Limiter *limiter.Limiter
	Panic   *settings.PanicMode
	Blocker *moderation.IPBlocker
	Reports *moderation.Reports
	Appeals *moderation.Appeals
	Admin   *admin.Service
}

// NewServer creates a Server with the given dependencies.
func NewServer(
	logger *zap.Logger,
	cfg config.Config,
	metrics observability.MetricsRegistry,
	linkSvc *links.Service,
	rateLimiter *limiter.Limiter,
	panicMode *settings.PanicMode,
	blocker *moderation.IPBlocker,
	reports *moderation.Reports,
	appeals *moderation.Appeals,
	adminSvc *admin.Service,
) *Server {
	return &Server{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Links:   linkSvc,
		Limiter: rateLimiter,
		Panic:   panicMode,
		Blocker: blocker,
		Reports: reports,
		Appeals: appeals,
		Admin:   adminSvc,
	}
}

// Routes builds the router. Guard order on write endpoints is IP block,
// then panic mode (shorten only), then rate limiting.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger))

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)

	r.HandleFunc("/api/shorten",
		s.blockGuard(s.panicGuard(s.rateLimit("shorten", s.Config.ShortenLimit, s.Config.ShortenWindow, s.ShortenHandler)))).
		Methods(http.MethodPost)

	r.HandleFunc("/api/report",
		s.blockGuard(s.rateLimit("report", s.Config.ReportLimit, s.Config.ReportWindow, s.ReportHandler))).
		Methods(http.MethodPost)

	r.HandleFunc("/api/appeals",
		s.blockGuard(s.rateLimit("appeal", s.Config.AppealLimit, s.Config.AppealWindow, s.LinkAppealHandler))).
		Methods(http.MethodPost)

	// Blocked clients must still be able to appeal their block, so this
	// route skips the IP guard and relies on the appeal rate limit alone.
	r.HandleFunc("/api/appeals/ip",
		s.rateLimit("appeal", s.Config.AppealLimit, s.Config.AppealWindow, s.IPAppealHandler)).
		Methods(http.MethodPost)

	r.HandleFunc("/api/analytics/{code}",
		s.blockGuard(s.rateLimit("general", s.Config.GeneralLimit, s.Config.GeneralWindow, s.AnalyticsHandler))).
		Methods(http.MethodGet)

	r.HandleFunc("/api/links",
		s.blockGuard(s.rateLimit("general", s.Config.GeneralLimit, s.Config.GeneralWindow, s.HistoryHandler))).
		Methods(http.MethodGet)

	r.HandleFunc("/api/links/{code}",
		s.blockGuard(s.rateLimit("general", s.Config.GeneralLimit, s.Config.GeneralWindow, s.DeleteLinkHandler))).
		Methods(http.MethodDelete)

	adm := r.PathPrefix("/api/admin").Subrouter()
	adm.HandleFunc("/stats", s.adminOnly(s.AdminStatsHandler)).Methods(http.MethodGet)
	adm.HandleFunc("/links", s.adminOnly(s.AdminLinksHandler)).Methods(http.MethodGet)
	adm.HandleFunc("/links/{code}", s.adminOnly(s.AdminDeleteLinkHandler)).Methods(http.MethodDelete)
	adm.HandleFunc("/reports", s.adminOnly(s.AdminPendingReportsHandler)).Methods(http.MethodGet)
	adm.HandleFunc("/reports/{id}", s.adminOnly(s.AdminResolveReportHandler)).Methods(http.MethodPost)
	adm.HandleFunc("/appeals", s.adminOnly(s.AdminPendingAppealsHandler)).Methods(http.MethodGet)
	adm.HandleFunc("/appeals/ip", s.adminOnly(s.AdminPendingIPAppealsHandler)).Methods(http.MethodGet)
	adm.HandleFunc("/appeals/ip/{id}", s.adminOnly(s.AdminResolveIPAppealHandler)).Methods(http.MethodPost)
	adm.HandleFunc("/appeals/{id}", s.adminOnly(s.AdminResolveAppealHandler)).Methods(http.MethodPost)
	adm.HandleFunc("/users/blocks", s.adminOnly(s.AdminListBlocksHandler)).Methods(http.MethodGet)
	adm.HandleFunc("/users/block", s.adminOnly(s.AdminBlockIPHandler)).Methods(http.MethodPost)
	adm.HandleFunc("/users/unblock", s.adminOnly(s.AdminUnblockIPHandler)).Methods(http.MethodPost)
	adm.HandleFunc("/settings/panic-mode", s.adminOnly(s.AdminPanicModeHandler)).Methods(http.MethodGet, http.MethodPost)

	// Redirect matches last so fixed prefixes win.
	r.HandleFunc("/{code}",
		s.blockGuard(s.rateLimit("general", s.Config.GeneralLimit, s.Config.GeneralWindow, s.RedirectHandler))).
		Methods(http.MethodGet)

	return r
}

// blockGuard rejects requests from actively blocked IPs before any other
// processing.
func (s *Server) blockGuard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := middleware.ClientIP(r)
		if s.Blocker.IsBlocked(r.Context(), ip) {
			http.Error(w, "access denied", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// panicGuard refuses link creation while panic mode is active.
func (s *Server) panicGuard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Panic.Enabled(r.Context()) {
			http.Error(w, "link creation is temporarily disabled", http.StatusServiceUnavailable)
			return
		}
		next(w, r)
	}
}

// rateLimit applies the fixed-window limiter for the given bucket, keyed by
// client IP.
func (s *Server) rateLimit(bucket string, limit int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := middleware.ClientIP(r)
		res := s.Limiter.Check(r.Context(), ip, bucket, limit, window)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// adminOnly validates the admin key header and applies the admin rate
// limit bucket.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return s.rateLimit("admin", s.Config.AdminLimit, s.Config.AdminWindow, func(w http.ResponseWriter, r *http.Request) {
		if !s.Admin.ValidateKey(r.Header.Get("X-Admin-Key")) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	})
}

// writeJSON marshals v into the response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("failed to encode response", zap.Error(err))
	}
}
