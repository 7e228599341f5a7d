package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openshorten/openshorten/internal/middleware"
	"github.com/openshorten/openshorten/internal/moderation"
)

// ReportRequest is the payload for reporting a short link.
type ReportRequest struct {
	ShortCode   string `json:"short_code"`
	Reason      string `json:"reason"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

// AppealRequest is the payload for appealing a flagged link.
type AppealRequest struct {
	ShortCode   string `json:"short_code"`
	Reason      string `json:"reason"`
	ContactInfo string `json:"contact_info,omitempty"`
}

// IPAppealRequest is the payload for appealing an IP block.
type IPAppealRequest struct {
	IPAddress   string `json:"ip_address"`
	Reason      string `json:"reason"`
	ContactInfo string `json:"contact_info,omitempty"`
}

// ReportHandler handles POST /api/report submissions.
func (s *Server) ReportHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "report"
	const method = "POST"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	req.ShortCode = strings.TrimSpace(req.ShortCode)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.ShortCode == "" || len(req.ShortCode) > s.Config.MaxShortCodeLength {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid short code", http.StatusBadRequest)
		return
	}
	if msg := s.validateReason(req.Reason, s.Config.MaxReportReason); msg != "" {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	if len(req.Category) > s.Config.MaxCategoryLength || len(req.Description) > s.Config.MaxDescription {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "field too long", http.StatusBadRequest)
		return
	}

	ip := middleware.ClientIP(r)
	report, err := s.Reports.Submit(r.Context(), req.ShortCode, req.Reason, req.Category, req.Description, ip)
	if err != nil {
		switch {
		case errors.Is(err, moderation.ErrNotFound):
			s.finish(endpoint, method, http.StatusNotFound, start)
			http.Error(w, "short link not found", http.StatusNotFound)
		case errors.Is(err, moderation.ErrDuplicate):
			s.finish(endpoint, method, http.StatusConflict, start)
			http.Error(w, "already reported recently", http.StatusConflict)
		default:
			logger.Error("report submission failed", zap.Error(err))
			s.finish(endpoint, method, http.StatusInternalServerError, start)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	s.finish(endpoint, method, http.StatusCreated, start)
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"id":     report.ID,
		"status": report.Status,
	})
}

// LinkAppealHandler handles POST /api/appeals for flagged links.
func (s *Server) LinkAppealHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "appeal"
	const method = "POST"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	var req AppealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	req.ShortCode = strings.TrimSpace(req.ShortCode)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.ShortCode == "" || len(req.ShortCode) > s.Config.MaxShortCodeLength {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid short code", http.StatusBadRequest)
		return
	}
	if msg := s.validateReason(req.Reason, s.Config.MaxReasonLength); msg != "" {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	if len(req.ContactInfo) > s.Config.MaxContactInfo {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "contact info too long", http.StatusBadRequest)
		return
	}

	ip := middleware.ClientIP(r)
	appeal, err := s.Appeals.SubmitLinkAppeal(r.Context(), req.ShortCode, req.Reason, req.ContactInfo, ip)
	if err != nil {
		switch {
		case errors.Is(err, moderation.ErrNotFound):
			s.finish(endpoint, method, http.StatusNotFound, start)
			http.Error(w, "short link not found", http.StatusNotFound)
		case errors.Is(err, moderation.ErrNotFlagged):
			s.finish(endpoint, method, http.StatusBadRequest, start)
			http.Error(w, "link is not flagged", http.StatusBadRequest)
		case errors.Is(err, moderation.ErrDuplicate):
			s.finish(endpoint, method, http.StatusConflict, start)
			http.Error(w, "appeal already pending", http.StatusConflict)
		default:
			logger.Error("link appeal failed", zap.Error(err))
			s.finish(endpoint, method, http.StatusInternalServerError, start)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	s.finish(endpoint, method, http.StatusCreated, start)
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"id":     appeal.ID,
		"status": appeal.Status,
	})
}

// IPAppealHandler handles POST /api/appeals/ip for blocked addresses. The
// target defaults to the caller's own address when omitted.
func (s *Server) IPAppealHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "ip_appeal"
	const method = "POST"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	var req IPAppealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	ip := middleware.ClientIP(r)
	req.IPAddress = strings.TrimSpace(req.IPAddress)
	if req.IPAddress == "" {
		req.IPAddress = ip
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if msg := s.validateReason(req.Reason, s.Config.MaxReasonLength); msg != "" {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	if len(req.ContactInfo) > s.Config.MaxContactInfo {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "contact info too long", http.StatusBadRequest)
		return
	}

	appeal, err := s.Appeals.SubmitIPAppeal(r.Context(), req.IPAddress, req.Reason, req.ContactInfo, ip)
	if err != nil {
		switch {
		case errors.Is(err, moderation.ErrNotBlocked):
			s.finish(endpoint, method, http.StatusBadRequest, start)
			http.Error(w, "address is not blocked", http.StatusBadRequest)
		case errors.Is(err, moderation.ErrDuplicate):
			s.finish(endpoint, method, http.StatusConflict, start)
			http.Error(w, "appeal already pending", http.StatusConflict)
		default:
			logger.Error("ip appeal failed", zap.Error(err))
			s.finish(endpoint, method, http.StatusInternalServerError, start)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	s.finish(endpoint, method, http.StatusCreated, start)
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"id":     appeal.ID,
		"status": appeal.Status,
	})
}

// validateReason checks the shared reason-length bounds and returns an error
// message, or "" when valid.
func (s *Server) validateReason(reason string, max int) string {
	if len(reason) < s.Config.MinReasonLength {
		return "reason too short"
	}
	if len(reason) > max {
		return "reason too long"
	}
	return ""
}
