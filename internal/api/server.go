// Package api provides the read-only HTTP API over wallet metrics and daily aggregates.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

// MetricsReader reads the wallet summary
type MetricsReader interface {
	List(ctx context.Context) ([]models.WalletMetrics, error)
	Get(ctx context.Context, address string) (*models.WalletMetrics, error)
}

// DailyReader reads daily aggregates
type DailyReader interface {
	GetRange(ctx context.Context, wallet string, from, to types.Date) ([]models.DailyAggregate, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	metrics    MetricsReader
	daily      DailyReader
	config     *ServerConfig
	logger     *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerS    int // Per client IP
	Burst           int
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, metrics MetricsReader, daily DailyReader, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Server{
		router:  mux.NewRouter(),
		metrics: metrics,
		daily:   daily,
		config:  config,
		logger:  logger.WithField("component", "api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerS, s.config.Burst)

	// Order matters: recovery must see panics from everything after it.
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/wallets", s.handleListWallets).Methods("GET")
	api.HandleFunc("/wallets/{address}", s.handleGetWallet).Methods("GET")
	api.HandleFunc("/wallets/{address}/daily", s.handleGetDaily).Methods("GET")
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "whale-tracker",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
