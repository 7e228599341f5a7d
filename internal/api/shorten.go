package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/openshorten/openshorten/internal/links"
	"github.com/openshorten/openshorten/internal/middleware"
)

// ShortenRequest is the payload for creating a short link.
type ShortenRequest struct {
	URL    string `json:"url"`
	UserID string `json:"user_id,omitempty"`
}

// ShortenResponse is returned on successful link creation.
type ShortenResponse struct {
	ShortCode   string   `json:"short_code"`
	ShortURL    string   `json:"short_url"`
	OriginalURL string   `json:"original_url"`
	SafetyScore int      `json:"safety_score"`
	Category    string   `json:"safety_category,omitempty"`
	Warnings    []string `json:"safety_warnings,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

// ShortenHandler handles POST /api/shorten requests.
func (s *Server) ShortenHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "shorten"
	const method = "POST"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	var req ShortenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "url required", http.StatusBadRequest)
		return
	}

	ip := middleware.ClientIP(r)
	link, err := s.Links.Shorten(r.Context(), req.URL, ip, req.UserID)
	if err != nil {
		var unsafe *links.UnsafeURLError
		switch {
		case errors.As(err, &unsafe):
			s.finish(endpoint, method, http.StatusUnprocessableEntity, start)
			s.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":           "url rejected",
				"reason":          unsafe.Assessment.Reason,
				"safety_score":    unsafe.Assessment.Score,
				"safety_category": unsafe.Assessment.Category,
				"warnings":        unsafe.Assessment.Warnings,
			})
		case errors.Is(err, links.ErrInvalidURL):
			s.finish(endpoint, method, http.StatusBadRequest, start)
			http.Error(w, "invalid url", http.StatusBadRequest)
		case errors.Is(err, links.ErrURLTooLong):
			s.finish(endpoint, method, http.StatusBadRequest, start)
			http.Error(w, "url too long", http.StatusBadRequest)
		default:
			logger.Error("shorten failed", zap.Error(err))
			s.finish(endpoint, method, http.StatusInternalServerError, start)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	s.finish(endpoint, method, http.StatusCreated, start)
	s.writeJSON(w, http.StatusCreated, ShortenResponse{
		ShortCode:   link.ShortCode,
		ShortURL:    s.Links.ShortURL(link.ShortCode),
		OriginalURL: link.OriginalURL,
		SafetyScore: link.SafetyScore,
		Category:    link.SafetyCategory,
		Warnings:    link.SafetyWarnings,
		CreatedAt:   link.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// finish records the request counter and latency metrics for a handler.
func (s *Server) finish(endpoint, method string, status int, start time.Time) {
	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
