package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/openshorten/openshorten/internal/moderation"
)

// ResolveRequest carries the moderator decision on a report or appeal.
type ResolveRequest struct {
	Status string `json:"status"`
}

// BlockIPRequest is the payload for blocking an address.
type BlockIPRequest struct {
	IPAddress     string `json:"ip_address"`
	Reason        string `json:"reason"`
	DurationHours int    `json:"duration_hours,omitempty"`
}

// UnblockIPRequest is the payload for lifting a block.
type UnblockIPRequest struct {
	IPAddress string `json:"ip_address"`
}

// PanicModeRequest toggles the emergency shorten lockout.
type PanicModeRequest struct {
	Enabled bool `json:"enabled"`
}

// AdminStatsHandler handles GET /api/admin/stats.
func (s *Server) AdminStatsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_stats"
	const method = "GET"

	stats, err := s.Admin.Stats(r.Context())
	if err != nil {
		s.Logger.Error("stats query failed", zap.Error(err))
		s.finish(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, stats)
}

// AdminLinksHandler handles GET /api/admin/links with optional search and
// pagination query parameters.
func (s *Server) AdminLinksHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_links"
	const method = "GET"

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	items, total, err := s.Admin.Links(r.Context(), q.Get("q"), page, limit)
	if err != nil {
		s.Logger.Error("link listing failed", zap.Error(err))
		s.finish(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"links": items,
		"total": total,
	})
}

// AdminDeleteLinkHandler handles DELETE /api/admin/links/{code}.
func (s *Server) AdminDeleteLinkHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_link_delete"
	const method = "DELETE"

	code := mux.Vars(r)["code"]
	if err := s.Links.Delete(r.Context(), code); err != nil {
		s.Logger.Error("admin delete failed", zap.String("code", code), zap.Error(err))
		s.finish(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AdminPendingReportsHandler handles GET /api/admin/reports.
func (s *Server) AdminPendingReportsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_reports"
	const method = "GET"

	reports, err := s.Reports.ListPending(r.Context(), listLimit(r))
	if err != nil {
		s.Logger.Error("report listing failed", zap.Error(err))
		s.finish(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// AdminResolveReportHandler handles POST /api/admin/reports/{id}.
func (s *Server) AdminResolveReportHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_report_resolve"
	const method = "POST"

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	report, err := s.Reports.Resolve(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		s.resolveError(w, endpoint, method, start, err)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, report)
}

// AdminPendingAppealsHandler handles GET /api/admin/appeals.
func (s *Server) AdminPendingAppealsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_appeals"
	const method = "GET"

	appeals, err := s.Appeals.ListPendingLinkAppeals(r.Context(), listLimit(r))
	if err != nil {
		s.Logger.Error("appeal listing failed", zap.Error(err))
		s.finish(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, map[string]any{"appeals": appeals})
}

// AdminPendingIPAppealsHandler handles GET /api/admin/appeals/ip.
func (s *Server) AdminPendingIPAppealsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_ip_appeals"
	const method = "GET"

	appeals, err := s.Appeals.ListPendingIPAppeals(r.Context(), listLimit(r))
	if err != nil {
		s.Logger.Error("ip appeal listing failed", zap.Error(err))
		s.finish(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, map[string]any{"appeals": appeals})
}

// AdminResolveAppealHandler handles POST /api/admin/appeals/{id}.
func (s *Server) AdminResolveAppealHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_appeal_resolve"
	const method = "POST"

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	appeal, err := s.Appeals.ResolveLinkAppeal(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		s.resolveError(w, endpoint, method, start, err)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, appeal)
}

// AdminResolveIPAppealHandler handles POST /api/admin/appeals/ip/{id}.
func (s *Server) AdminResolveIPAppealHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_ip_appeal_resolve"
	const method = "POST"

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	appeal, err := s.Appeals.ResolveIPAppeal(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		s.resolveError(w, endpoint, method, start, err)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, appeal)
}

// AdminListBlocksHandler handles GET /api/admin/users/blocks.
func (s *Server) AdminListBlocksHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_blocks"
	const method = "GET"

	blocks, err := s.Blocker.ListActive(r.Context())
	if err != nil {
		s.Logger.Error("block listing failed", zap.Error(err))
		s.finish(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, map[string]any{"blocks": blocks})
}

// AdminBlockIPHandler handles POST /api/admin/users/block.
func (s *Server) AdminBlockIPHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_block"
	const method = "POST"

	var req BlockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.IPAddress == "" || req.Reason == "" {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "ip_address and reason required", http.StatusBadRequest)
		return
	}
	if req.DurationHours == 0 {
		req.DurationHours = s.Config.DefaultBlockHours
	}

	block, err := s.Blocker.Block(r.Context(), req.IPAddress, req.Reason, req.DurationHours)
	if err != nil {
		if errors.Is(err, moderation.ErrIneligibleIP) {
			s.finish(endpoint, method, http.StatusBadRequest, start)
			http.Error(w, "address cannot be blocked", http.StatusBadRequest)
			return
		}
		s.Logger.Error("block failed", zap.String("ip", req.IPAddress), zap.Error(err))
		s.finish(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.finish(endpoint, method, http.StatusCreated, start)
	s.writeJSON(w, http.StatusCreated, block)
}

// AdminUnblockIPHandler handles POST /api/admin/users/unblock.
func (s *Server) AdminUnblockIPHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_unblock"
	const method = "POST"

	var req UnblockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.IPAddress == "" {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "ip_address required", http.StatusBadRequest)
		return
	}

	if err := s.Blocker.Unblock(r.Context(), req.IPAddress); err != nil {
		s.Logger.Error("unblock failed", zap.String("ip", req.IPAddress), zap.Error(err))
		s.finish(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "unblocked"})
}

// AdminPanicModeHandler handles GET and POST /api/admin/settings/panic-mode.
func (s *Server) AdminPanicModeHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_panic_mode"

	if r.Method == http.MethodGet {
		enabled := s.Panic.Enabled(r.Context())
		s.finish(endpoint, "GET", http.StatusOK, start)
		s.writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
		return
	}

	var req PanicModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(endpoint, "POST", http.StatusBadRequest, start)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if err := s.Panic.Toggle(r.Context(), req.Enabled); err != nil {
		s.Logger.Error("panic mode toggle failed", zap.Error(err))
		s.finish(endpoint, "POST", http.StatusInternalServerError, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.finish(endpoint, "POST", http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

// resolveError maps moderation resolution failures onto HTTP statuses.
func (s *Server) resolveError(w http.ResponseWriter, endpoint, method string, start time.Time, err error) {
	switch {
	case errors.Is(err, moderation.ErrNotFound):
		s.finish(endpoint, method, http.StatusNotFound, start)
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, moderation.ErrAlreadyResolved):
		s.finish(endpoint, method, http.StatusConflict, start)
		http.Error(w, "already resolved", http.StatusConflict)
	case errors.Is(err, moderation.ErrInvalidStatus):
		s.finish(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "status must be approved or rejected", http.StatusBadRequest)
	default:
		s.Logger.Error("resolution failed", zap.Error(err))
		s.finish(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// listLimit reads the limit query parameter with a sane default.
func listLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 50
}
