// Package server exposes the scanner's read-only HTTP and WebSocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/server/handler"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/server/middleware"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimitPerMinute > 0 enables per-client limiting through Limiter.
	RateLimitPerMinute int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health        *handler.HealthHandler
	Scanner       *handler.ScannerHandler
	Opportunities *handler.OpportunityHandler
	Audit         *handler.AuditHandler
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

// Server is the headless HTTP + WebSocket API server for the scanner.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// Health and metrics stay reachable without an API key. limiter and wsHub
// may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, wsHub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// NewHandler builds the routed and middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/scanner/status", handlers.Scanner.GetStatus)
	mux.HandleFunc("GET /api/opportunities/recent", handlers.Opportunities.ListRecent)
	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.List)
	}
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	if limiter != nil && cfg.RateLimitPerMinute > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitPerMinute, time.Minute, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
