// Package api provides the HTTP configuration and status surface over the
// monitor engine.
package api

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wallet-monitor/internal/logging"
	"github.com/wallet-monitor/internal/monitor"
	"github.com/wallet-monitor/internal/types"
)

// WalletStore is the durable side of wallet mutations. The scheduler stays
// authoritative at runtime; the store only has to survive restarts. It may
// be nil, in which case the wallet set is in-memory only.
type WalletStore interface {
	Create(ctx context.Context, w *types.WalletConfig) error
	Update(ctx context.Context, w *types.WalletConfig) error
	Delete(ctx context.Context, address string) error
}

// historyInvalidator is implemented by history stores that keep a cache
// in front of durable storage.
type historyInvalidator interface {
	Invalidate(ctx context.Context, address string) error
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	engine     *monitor.Engine
	history    monitor.HistoryStore
	wallets    WalletStore
	config     *ServerConfig
	logger     *logging.Logger
	startedAt  time.Time
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond int

	// Defaults applied when an add-wallet request omits a field.
	DefaultThresholdWei  *big.Int
	DefaultCheckInterval time.Duration
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, engine *monitor.Engine, history monitor.HistoryStore, wallets WalletStore, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Server{
		router:    mux.NewRouter(),
		engine:    engine,
		history:   history,
		wallets:   wallets,
		config:    config,
		logger:    logger.WithField("component", "api"),
		startedAt: time.Now(),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond)

	// Middleware order matters: request IDs first so everything downstream
	// logs with them.
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
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
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/wallets", s.handleAddWallet).Methods("POST")
	api.HandleFunc("/wallets", s.handleListWallets).Methods("GET")
	api.HandleFunc("/wallets/{address}", s.handleGetWallet).Methods("GET")
	api.HandleFunc("/wallets/{address}", s.handleUpdateWallet).Methods("PATCH")
	api.HandleFunc("/wallets/{address}", s.handleRemoveWallet).Methods("DELETE")
	api.HandleFunc("/wallets/{address}/history", s.handleWalletHistory).Methods("GET")
	api.HandleFunc("/wallets/{address}/check", s.handleCheckWallet).Methods("POST")

	api.HandleFunc("/status", s.handleStatus).Methods("GET")
}

// Router returns the configured handler, for tests.
func (s *Server) Router() http.Handler {
	return s.router
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
