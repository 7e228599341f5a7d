package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/openshorten/openshorten/internal/links"
	"github.com/openshorten/openshorten/internal/middleware"
)

// RedirectHandler handles GET /{code} and issues the redirect to the
// original URL, or to the interstitial warning page for flagged links.
func (s *Server) RedirectHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "redirect"
	const method = "GET"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	code := mux.Vars(r)["code"]
	ip := middleware.ClientIP(r)

	target, err := s.Links.Resolve(r.Context(), code, ip, r.UserAgent(), r.Referer())
	if err != nil {
		if errors.Is(err, links.ErrNotFound) {
			s.finish(endpoint, method, http.StatusNotFound, start)
			http.Error(w, "short link not found", http.StatusNotFound)
			return
		}
		logger.Error("resolve failed", zap.String("code", code), zap.Error(err))
		s.finish(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.finish(endpoint, method, http.StatusFound, start)
	http.Redirect(w, r, target, http.StatusFound)
}

// AnalyticsHandler handles GET /api/analytics/{code}.
func (s *Server) AnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "analytics"
	const method = "GET"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	code := mux.Vars(r)["code"]
	view, err := s.Links.Analytics(r.Context(), code)
	if err != nil {
		if errors.Is(err, links.ErrNotFound) {
			s.finish(endpoint, method, http.StatusNotFound, start)
			http.Error(w, "short link not found", http.StatusNotFound)
			return
		}
		logger.Error("analytics failed", zap.String("code", code), zap.Error(err))
		s.finish(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, view)
}

// HistoryHandler handles GET /api/links and returns recent links created by
// the caller, identified by the X-User-ID header or the client IP.
func (s *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "history"
	const method = "GET"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}

	userID := r.Header.Get("X-User-ID")
	ip := middleware.ClientIP(r)
	history, err := s.Links.History(r.Context(), userID, ip, limit)
	if err != nil {
		logger.Error("history failed", zap.Error(err))
		s.finish(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, map[string]any{"links": history})
}

// DeleteLinkHandler handles DELETE /api/links/{code}. Only the creator may
// delete a link: matched on user ID when the header is present, on client
// IP for anonymous links.
func (s *Server) DeleteLinkHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "link_delete"
	const method = "DELETE"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	code := mux.Vars(r)["code"]
	userID := r.Header.Get("X-User-ID")
	ip := middleware.ClientIP(r)

	if err := s.Links.DeleteOwned(r.Context(), code, userID, ip); err != nil {
		switch {
		case errors.Is(err, links.ErrNotFound):
			s.finish(endpoint, method, http.StatusNotFound, start)
			http.Error(w, "short link not found", http.StatusNotFound)
		case errors.Is(err, links.ErrForbidden):
			s.finish(endpoint, method, http.StatusForbidden, start)
			http.Error(w, "not the link owner", http.StatusForbidden)
		default:
			logger.Error("delete failed", zap.String("code", code), zap.Error(err))
			s.finish(endpoint, method, http.StatusInternalServerError, start)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
