package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// OpportunityLister is the read side the opportunities endpoint needs.
type OpportunityLister interface {
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.OpportunitySnapshot, error)
}

// OpportunityHandler serves persisted opportunity snapshots.
type OpportunityHandler struct {
	store  OpportunityLister
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(store OpportunityLister, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{store: store, logger: logHandler(logger, "opportunities")}
}

type listOpportunitiesResponse struct {
	Opportunities []domain.OpportunitySnapshot `json:"opportunities"`
	Limit         int                          `json:"limit"`
	Offset        int                          `json:"offset"`
}

// ListRecent returns the most recent snapshots, newest first.
// GET /api/opportunities/recent?limit=50&offset=0&actionable=true&symbol=BTC&since=RFC3339
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "opportunity store not configured")
		return
	}

	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opps, err := h.store.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.OpportunitySnapshot{}
	}

	writeJSON(w, http.StatusOK, listOpportunitiesResponse{
		Opportunities: opps,
		Limit:         opts.Limit,
		Offset:        opts.Offset,
	})
}
