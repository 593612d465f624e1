package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Yslas262/shopify-setup/internal/api"
	"github.com/Yslas262/shopify-setup/internal/config"
	"github.com/Yslas262/shopify-setup/internal/home"
	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/pipeline/steps"
	"github.com/Yslas262/shopify-setup/internal/reconcile"
	"github.com/Yslas262/shopify-setup/internal/server/endpoints"
	"github.com/Yslas262/shopify-setup/internal/shopify"
	"github.com/Yslas262/shopify-setup/internal/svcctx"
	"github.com/Yslas262/shopify-setup/internal/uploads"
)

// Server is the shopsetup HTTP server. It owns the admin API client and
// the step orchestrator and injects them into request contexts.
type Server struct {
	httpServer *http.Server
	configMgr  *config.Manager
	homeDir    *home.Dir
	logger     *slog.Logger

	// services holds all core services for context enrichment. Rebuilt
	// on config reload, so reads go through the mutex.
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8780)
	Port string
	// Home is the shopsetup home directory for uploads and run state
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8780"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Home == nil {
		return nil, errors.New("home directory is required")
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		homeDir:   cfg.Home,
		logger:    cfg.Logger,
	}

	services, err := s.buildServices(cfg.ConfigManager.Get())
	if err != nil {
		return nil, err
	}
	s.services = services

	// Rebuild the admin client and orchestrator when the config file
	// changes, so a new shop or token takes effect without a restart.
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		rebuilt, err := s.buildServices(c)
		if err != nil {
			s.logger.Error("config reload failed", "error", err)
			return
		}
		s.mu.Lock()
		s.services = rebuilt
		s.mu.Unlock()
		s.logger.Info("services rebuilt from config", "shop", c.Shopify.Shop)
	})

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.withServices(s.buildMux()),
		ReadTimeout: 30 * time.Second,
		// Setup runs hold the response open while steps execute against
		// the admin API, so the write timeout has to cover a full run.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// buildServices assembles the service graph from a config snapshot.
func (s *Server) buildServices(c *config.Config) (*svcctx.Services, error) {
	client := shopify.New(shopify.Config{
		Shop:              c.Shopify.Shop,
		Token:             c.ResolvedToken(),
		APIVersion:        c.Shopify.APIVersion,
		RequestsPerMinute: c.Shopify.RequestsPerMinute,
		Logger:            s.logger,
	})

	uploadMgr := uploads.NewManager(uploads.Config{
		Client:       client,
		Logger:       s.logger,
		PollInterval: time.Duration(c.Uploads.PollIntervalSeconds) * time.Second,
		MaxPolls:     c.Uploads.MaxPolls,
	})

	reconciler := reconcile.New(client, s.logger)

	registry, err := steps.NewRegistry(steps.Config{
		Client:            client,
		Uploads:           uploadMgr,
		Reconciler:        reconciler,
		Logger:            s.logger,
		ThemePollInterval: time.Duration(c.Theme.PollIntervalSeconds) * time.Second,
		ThemeMaxPolls:     c.Theme.MaxPolls,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build step registry: %w", err)
	}

	orchestrator, err := pipeline.NewOrchestrator(registry, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build orchestrator: %w", err)
	}

	return &svcctx.Services{
		Shopify:      client,
		Orchestrator: orchestrator,
		ConfigMgr:    s.configMgr,
		Logger:       s.logger,
		Home:         s.homeDir,
	}, nil
}

// Start starts the server. It blocks until the context is cancelled or
// an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.homeDir.EnsureExists(); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to create home directory: %w", err)
	}

	s.configMgr.WatchConfig()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown of the HTTP server.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Services returns the current service graph. Returns the latest
// snapshot after config reloads.
func (s *Server) Services() *svcctx.Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}
