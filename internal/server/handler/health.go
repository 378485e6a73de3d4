package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	checks map[string]HealthCheck
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. Each named check runs on every
// request; nil checks are ignored.
func NewHealthHandler(logger *slog.Logger, checks map[string]HealthCheck) *HealthHandler {
	live := make(map[string]HealthCheck, len(checks))
	for name, c := range checks {
		if c != nil {
			live[name] = c
		}
	}
	return &HealthHandler{checks: live, logger: logHandler(logger, "health")}
}

// HealthCheck responds with the status of the process and its dependencies.
// Any failing dependency turns the response into a 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency unhealthy",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":       overall,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
