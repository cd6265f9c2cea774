// Package server exposes the settlement engine over HTTP and streams its
// events over WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/updown/internal/crypto"
	"github.com/alanyoungcy/updown/internal/domain"
	"github.com/alanyoungcy/updown/internal/server/handler"
	"github.com/alanyoungcy/updown/internal/server/middleware"
	"github.com/alanyoungcy/updown/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey gates state-changing requests when set.
	APIKey crypto.APIKeyAuth
	// SignatureSkew bounds the age of signed request timestamps.
	SignatureSkew time.Duration
	// RateLimit is requests per RateWindow per client; 0 disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Rounds  *handler.RoundHandler
	Bets    *handler.BetHandler
	Admin   *handler.AdminHandler
	Archive *handler.ArchiveHandler // nil when no archive is configured
	Audit   *handler.AuditHandler   // nil when the store keeps no audit log
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and wraps them in the middleware chain.
// limiter and wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewHandler(cfg, handlers, wsHub, limiter, time.Now, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, now func() time.Time, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Health.Status)

	mux.HandleFunc("GET /api/v1/state", handlers.Rounds.GetState)
	mux.HandleFunc("GET /api/v1/rounds", handlers.Rounds.ListRounds)
	mux.HandleFunc("GET /api/v1/rounds/{epoch}", handlers.Rounds.GetRound)
	mux.HandleFunc("GET /api/v1/rounds/{epoch}/bets/{user}", handlers.Rounds.GetBet)
	mux.HandleFunc("GET /api/v1/users/{user}/rounds", handlers.Rounds.UserRounds)

	mux.HandleFunc("POST /api/v1/bets/{position}", handlers.Bets.PlaceBet)
	mux.HandleFunc("POST /api/v1/claims", handlers.Bets.Claim)

	mux.HandleFunc("POST /api/v1/admin/genesis/start", handlers.Admin.GenesisStart())
	mux.HandleFunc("POST /api/v1/admin/genesis/lock", handlers.Admin.GenesisLock())
	mux.HandleFunc("POST /api/v1/admin/rounds/execute", handlers.Admin.Execute())
	mux.HandleFunc("POST /api/v1/admin/pause", handlers.Admin.Pause())
	mux.HandleFunc("POST /api/v1/admin/unpause", handlers.Admin.Unpause())
	mux.HandleFunc("PUT /api/v1/admin/params", handlers.Admin.SetParams)
	mux.HandleFunc("POST /api/v1/admin/treasury/claim", handlers.Admin.ClaimTreasury)

	if handlers.Archive != nil {
		mux.HandleFunc("GET /api/v1/archive/rounds", handlers.Archive.ListArchivedRounds)
		mux.HandleFunc("GET /api/v1/archive/rounds/{epoch}", handlers.Archive.GetArchivedRound)
	}
	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/v1/admin/audit", handlers.Audit.ListEntries)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	skew := cfg.SignatureSkew
	if skew <= 0 {
		skew = 5 * time.Minute
	}

	// Innermost first: rate limit keys on the caller Identity resolved.
	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Identity(skew, now, logger)(h)
	h = middleware.APIKey(cfg.APIKey, skew, now)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
