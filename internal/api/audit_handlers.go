package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/omnivault/omnivault/internal/audit"
	"github.com/omnivault/omnivault/internal/middleware"
)

// maxAuditExportLimit caps one export response.
const maxAuditExportLimit = 10000

// AuditHandlers holds dependencies for audit trail handlers.
type AuditHandlers struct {
	repo audit.Repository
}

// NewAuditHandlers creates a new AuditHandlers instance.
func NewAuditHandlers(repo audit.Repository) *AuditHandlers {
	return &AuditHandlers{repo: repo}
}

// Export handles GET /audit/export?format=csv|json&from=&to=&limit= -
// exports the authenticated identity's own audit trail. Timestamps are
// RFC 3339; format defaults to json.
func (h *AuditHandlers) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	identity := middleware.GetIdentity(r.Context())
	if identity == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	query := r.URL.Query()

	format := audit.ExportFormat(query.Get("format"))
	if format == "" {
		format = audit.ExportFormatJSON
	}
	if format != audit.ExportFormatCSV && format != audit.ExportFormatJSON {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "format must be 'csv' or 'json'")
		return
	}

	var from, to time.Time
	var err error
	if v := query.Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "from must be an RFC 3339 timestamp")
			return
		}
	}
	if v := query.Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "to must be an RFC 3339 timestamp")
			return
		}
	}

	limit := maxAuditExportLimit
	if v := query.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxAuditExportLimit {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be between 1 and 10000")
			return
		}
	}

	data, err := audit.ExportLogs(h.repo, audit.ExportOptions{
		Format:   format,
		From:     from,
		To:       to,
		Identity: identity,
		Limit:    limit,
	})
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to export audit logs")
		return
	}

	// The export itself is an auditable event.
	if err := audit.LogAccessFromRequest(r, h.repo, "marketplace", identity, "export_audit_logs"); err != nil {
		slog.ErrorContext(r.Context(), "failed to audit export", "error", err)
	}

	switch format {
	case audit.ExportFormatCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-trail.csv"`)
	default:
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(r.Context(), "failed to write export response", "error", err)
	}
}
