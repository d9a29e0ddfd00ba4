// Package server is the operator-facing HTTP + WebSocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sumitrevolt/flasharb/internal/domain"
	"github.com/sumitrevolt/flasharb/internal/metrics"
	"github.com/sumitrevolt/flasharb/internal/server/handler"
	"github.com/sumitrevolt/flasharb/internal/server/middleware"
	"github.com/sumitrevolt/flasharb/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication

	// Heartbeat abuse protection; zero disables rate limiting.
	HeartbeatRateLimit  int
	HeartbeatRateWindow time.Duration
}

// Handlers aggregates everything the server registers.
type Handlers struct {
	Health        *handler.HealthHandler
	Status        *handler.StatusHandler
	Opportunities *handler.OpportunityHandler
	Executions    *handler.ExecutionHandler
	Quotes        *handler.QuoteHandler
	Risk          *handler.RiskHandler
	Tasks         *handler.TaskHandler
	Workers       *handler.WorkerHandler
}

// Server is the engine's operator API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer wires routes and middleware. Handlers that are nil for the
// current mode simply have their routes omitted. RateLimiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, m *metrics.Registry, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	if handlers.Opportunities != nil {
		mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.ListOpportunities)
		mux.HandleFunc("GET /api/opportunities/{id}", handlers.Opportunities.GetOpportunity)
	}
	if handlers.Executions != nil {
		mux.HandleFunc("GET /api/executions", handlers.Executions.ListExecutions)
		mux.HandleFunc("GET /api/executions/aggregates", handlers.Executions.GetAggregates)
	}
	if handlers.Quotes != nil {
		mux.HandleFunc("GET /api/quotes/history", handlers.Quotes.GetQuoteHistory)
	}
	if handlers.Risk != nil {
		mux.HandleFunc("GET /api/risk", handlers.Risk.GetRiskState)
		mux.HandleFunc("POST /api/risk/pause", handlers.Risk.PauseRisk)
	}
	if handlers.Tasks != nil {
		mux.HandleFunc("POST /api/tasks", handlers.Tasks.SubmitTask)
		mux.HandleFunc("GET /api/tasks", handlers.Tasks.ListTasks)
		mux.HandleFunc("GET /api/tasks/events", handlers.Tasks.ListTaskEvents)
		mux.HandleFunc("GET /api/tasks/{id}", handlers.Tasks.GetTask)
		mux.HandleFunc("POST /api/tasks/{id}/status", handlers.Tasks.UpdateTaskStatus)
	}
	if handlers.Workers != nil {
		heartbeat := http.Handler(http.HandlerFunc(handlers.Workers.Heartbeat))
		if limiter != nil && cfg.HeartbeatRateLimit > 0 {
			heartbeat = middleware.RateLimit(limiter, cfg.HeartbeatRateLimit, cfg.HeartbeatRateWindow)(heartbeat)
		}
		mux.Handle("POST /api/workers/heartbeat", heartbeat)
		mux.HandleFunc("GET /api/workers", handlers.Workers.ListWorkers)
	}

	if m != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{}))
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Start listens for requests and blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
