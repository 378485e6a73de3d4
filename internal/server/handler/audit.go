package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// AuditLister is the read side the audit endpoint needs.
type AuditLister interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AuditHandler serves the audit log: archive runs, scan errors and
// reconnects.
type AuditHandler struct {
	store  AuditLister
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler. store may be nil.
func NewAuditHandler(store AuditLister, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{store: store, logger: logHandler(logger, "audit")}
}

type listAuditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// List returns audit entries, newest first.
// GET /api/audit?limit=50&offset=0&event=scan_error&since=RFC3339&until=RFC3339
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "audit store not configured")
		return
	}

	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts.Event = strings.TrimSpace(r.URL.Query().Get("event"))

	entries, err := h.store.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit entries failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}

	writeJSON(w, http.StatusOK, listAuditResponse{
		Entries: entries,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}
