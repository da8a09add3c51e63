package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/metrics"
	"github.com/alanyoungcy/tradedvm/internal/server/handler"
	"github.com/alanyoungcy/tradedvm/internal/server/middleware"
	"github.com/alanyoungcy/tradedvm/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port         int
	CORSOrigins  []string
	APIKey       string // empty disables authentication
	RateLimitRPS int    // zero disables rate limiting
}

// Handlers aggregates the HTTP handlers the server registers. Pipeline,
// Status and Hub are optional.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Listings *handler.ListingHandler
	Trade    *handler.TradeHandler
	Pipeline *handler.PipelineHandler
	Hub      *ws.Hub
}

// Server is the HTTP and websocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in CORS, logging, rate
// limiting and auth. The health and metrics endpoints need no API key.
func NewServer(cfg Config, h Handlers, limiter domain.RateLimiter, m *metrics.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, middleware.Instrument(m, pattern)(fn))
	}

	route("GET /api/health", h.Health.HealthCheck)
	if h.Status != nil {
		route("GET /api/status", h.Status.GetStatus)
	}

	route("POST /api/listings/validate", h.Listings.Validate)
	route("POST /api/listings/tags", h.Listings.Tags)
	route("POST /api/listings/wire", h.Listings.Wire)
	route("GET /api/listings", h.Listings.List)
	route("GET /api/listings/{addr}", h.Listings.Get)

	route("POST /api/trade/envelopes", h.Trade.BuildEnvelope)
	route("GET /api/trade/stages", h.Trade.Stages)
	route("POST /api/trade/quote", h.Trade.Quote)
	route("GET /api/trade/orders/{id}/messages", h.Trade.OrderMessages)
	route("GET /api/listings/{addr}/messages", h.Trade.ListingMessages)

	if h.Pipeline != nil {
		route("GET /api/pipeline/stats", h.Pipeline.GetStats)
		route("POST /api/pipeline/archive", h.Pipeline.TriggerArchive)
		route("GET /api/pipeline/batches", h.Pipeline.ListBatches)
		route("GET /api/pipeline/batches/{path...}", h.Pipeline.GetBatch)
	}
	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWS)
	}
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	var root http.Handler = mux
	root = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(root)
	root = middleware.RateLimit(limiter, cfg.RateLimitRPS, time.Second, logger)(root)
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      root,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
