package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// StatusFunc reports the scanner status as a JSON-encodable value. A nil
// value with a nil error means no status has been recorded yet.
type StatusFunc func(ctx context.Context) (any, error)

// ScannerHandler serves the scanner status endpoint.
type ScannerHandler struct {
	status StatusFunc
	mode   string
	logger *slog.Logger
}

// NewScannerHandler creates a ScannerHandler.
func NewScannerHandler(mode string, status StatusFunc, logger *slog.Logger) *ScannerHandler {
	return &ScannerHandler{status: status, mode: mode, logger: logHandler(logger, "scanner")}
}

// GetStatus responds with the current scanner status.
// GET /api/scanner/status
func (h *ScannerHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	var (
		st  any
		err error
	)
	if h.status != nil {
		st, err = h.status(r.Context())
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "scanner status failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read scanner status")
		return
	}
	if st == nil {
		st = map[string]string{"state": "idle"}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   h.mode,
		"status": st,
	})
}
