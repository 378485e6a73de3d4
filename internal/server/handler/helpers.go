package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// parseListOpts extracts pagination and filter parameters from the query
// string. Defaults: limit=50 (max 500), offset=0. Malformed values fall back
// to the defaults except since/until, which are reported as errors.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()

	opts := domain.ListOpts{Limit: defaultListLimit}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	if v := q.Get("actionable"); v != "" {
		opts.ActionableOnly, _ = strconv.ParseBool(v)
	}
	opts.Symbol = strings.ToUpper(strings.TrimSpace(q.Get("symbol")))

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"since", &opts.Since}, {"until", &opts.Until}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return domain.ListOpts{}, &queryError{param: p.name, value: v}
		}
		*p.dst = &t
	}
	return opts, nil
}

type queryError struct {
	param, value string
}

func (e *queryError) Error() string {
	return "invalid " + e.param + " " + strconv.Quote(e.value) + " (want RFC3339)"
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
