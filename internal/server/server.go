package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/server/handler"
	"github.com/alanyoungcy/marginterm/internal/server/middleware"
	"github.com/alanyoungcy/marginterm/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Per-IP request limit; zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Nil handlers
// leave their routes unregistered; Actions is nil in read-only modes.
type Handlers struct {
	Health      *handler.HealthHandler
	State       *handler.StateHandler
	Risk        *handler.RiskHandler
	Swap        *handler.SwapHandler
	History     *handler.HistoryHandler
	Preferences *handler.PreferenceHandler
	Actions     *handler.ActionHandler
	Session     *handler.SessionHandler
	System      *handler.SystemHandler
	Metrics     http.Handler
}

// Server is the HTTP + websocket API of the terminal backend.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on a ServeMux and
// the middleware chain applied. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewHandler(cfg, handlers, hub, limiter, logger),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Actions block until they settle on-chain.
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed and wrapped http.Handler.
func NewHandler(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	if h.Health != nil {
		mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	}
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	if h.State != nil {
		mux.HandleFunc("GET /api/pools", h.State.ListPools)
		mux.HandleFunc("GET /api/accounts", h.State.ListAccounts)
		mux.HandleFunc("GET /api/markets/{market}/orderbook", h.State.Orderbook)
	}
	if h.Risk != nil {
		mux.HandleFunc("GET /api/accounts/{address}/risk", h.Risk.AccountRisk)
		mux.HandleFunc("POST /api/risk/project", h.Risk.Project)
	}
	if h.Swap != nil {
		mux.HandleFunc("POST /api/swap/quote", h.Swap.Quote)
	}
	if h.History != nil {
		mux.HandleFunc("GET /api/history/candles", h.History.Candles)
		mux.HandleFunc("GET /api/history/trades", h.History.Trades)
	}
	if h.Preferences != nil {
		mux.HandleFunc("GET /api/preferences", h.Preferences.Get)
		mux.HandleFunc("PUT /api/preferences", h.Preferences.Update)
	}
	if h.Actions != nil {
		mux.HandleFunc("POST /api/actions", h.Actions.Dispatch)
		mux.HandleFunc("GET /api/actions", h.Actions.List)
		mux.HandleFunc("GET /api/actions/{id}", h.Actions.Get)
	}
	if h.Session != nil {
		mux.HandleFunc("GET /api/session", h.Session.Get)
		mux.HandleFunc("POST /api/session", h.Session.Update)
	}
	if h.System != nil {
		mux.HandleFunc("POST /api/refresh", h.System.Refresh)
		mux.HandleFunc("GET /api/format/currency", h.System.Currency)
		mux.HandleFunc("GET /api/config", h.System.Config)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var out http.Handler = mux
	out = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(out)
	out = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(out)
	out = middleware.Logging(logger, "/api/health", "/metrics")(out)
	out = middleware.CORS(cfg.CORSOrigins)(out)
	return out
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server: starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
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
