// Package api serves backtest jobs, archived results and live strategy state
// over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/cta/internal/api/handler"
	"github.com/newthinker/cta/internal/api/job"
	"github.com/newthinker/cta/internal/api/middleware"
	"github.com/newthinker/cta/internal/metrics"
	"github.com/newthinker/cta/internal/storage/archive"
	"go.uber.org/zap"
)

// Server represents the HTTP API server
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	backtests  *handler.BacktestHandler
}

// Config holds server configuration
type Config struct {
	Host   string
	Port   int
	APIKey string

	// MaxJobs and JobTTL bound the in-memory backtest job list
	MaxJobs int
	JobTTL  time.Duration
}

// Dependencies are the services behind the endpoints. A nil dependency
// leaves its routes unregistered.
type Dependencies struct {
	Backtester handler.Runner
	Archive    archive.Storage
	Strategies handler.StrategyView
	Metrics    *metrics.Registry
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 100
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 24 * time.Hour
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		mux:    mux,
	}
	s.setupRoutes(cfg, deps)

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	if deps.Metrics != nil {
		s.mux.Handle("GET /metrics", deps.Metrics.Handler("/metrics"))
	}

	v1 := http.NewServeMux()
	if deps.Backtester != nil {
		s.backtests = handler.NewBacktestHandler(job.NewStore(cfg.MaxJobs, cfg.JobTTL), deps.Backtester, deps.Archive, s.logger)
		v1.HandleFunc("POST /api/v1/backtests", s.backtests.Create)
		v1.HandleFunc("GET /api/v1/backtests", s.backtests.List)
		v1.HandleFunc("GET /api/v1/backtests/{id}", s.backtests.Get)
	}
	if deps.Archive != nil {
		results := handler.NewResultsHandler(deps.Archive)
		v1.HandleFunc("GET /api/v1/results", results.List)
		v1.HandleFunc("GET /api/v1/results/{key...}", results.Get)
	}
	if deps.Strategies != nil {
		strategies := handler.NewStrategiesHandler(deps.Strategies)
		v1.HandleFunc("GET /api/v1/strategies", strategies.List)
		v1.HandleFunc("GET /api/v1/strategies/{name}", strategies.Get)
	}
	s.mux.Handle("/api/v1/", middleware.APIKeyAuth(cfg.APIKey)(v1))
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for running backtest jobs
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	err := s.httpServer.Shutdown(ctx)
	if s.backtests != nil {
		s.backtests.Wait()
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
