package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
	"github.com/alanyoungcy/updown/internal/server/middleware"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditHandler serves the audit log of committed events to admins.
type AuditHandler struct {
	audit  domain.AuditStore
	roles  domain.Authorizer
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit domain.AuditStore, roles domain.Authorizer, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, roles: roles, logger: logger}
}

// ListEntries returns audit entries newest first. Query parameters: limit
// (default 50, at most 500), offset, and since/until as unix seconds.
// GET /api/v1/admin/audit
func (h *AuditHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	if err := h.roles.Authorize(r.Context(), middleware.CallerFrom(r.Context()), domain.RoleAdmin); err != nil {
		writeEngineError(w, r, h.logger, "list audit", err)
		return
	}

	limit, ok := queryInt(w, r, "limit", defaultAuditLimit)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}
	if limit <= 0 || limit > maxAuditLimit || offset < 0 {
		writeError(w, http.StatusBadRequest, "limit must be in [1, 500] and offset >= 0")
		return
	}
	opts := domain.ListOpts{Limit: int(limit), Offset: int(offset)}
	if opts.Since, ok = queryUnix(w, r, "since"); !ok {
		return
	}
	if opts.Until, ok = queryUnix(w, r, "until"); !ok {
		return
	}

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		writeEngineError(w, r, h.logger, "list audit", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "limit": limit, "offset": offset})
}

// queryUnix parses an optional unix-seconds query parameter.
func queryUnix(w http.ResponseWriter, r *http.Request, name string) (*time.Time, bool) {
	if r.URL.Query().Get(name) == "" {
		return nil, true
	}
	n, ok := queryInt(w, r, name, 0)
	if !ok {
		return nil, false
	}
	t := time.Unix(n, 0).UTC()
	return &t, true
}
