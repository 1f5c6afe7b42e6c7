package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"medportal/internal/cache"
	"medportal/internal/catalog"
	"medportal/internal/config"
	"medportal/internal/core"
	"medportal/internal/log"
	"medportal/internal/metrics"
	"medportal/internal/orchestrator"
	"medportal/internal/provider"
	"medportal/internal/records"
	"medportal/internal/session"

	"github.com/gin-gonic/gin"
)

// Deps holds collaborators built outside the server. Nil fields are built
// from ServerConfig.
type Deps struct {
	Provider core.GenerationProvider
	Records  records.Reader
}

// Server application server
type Server struct {
	port    string
	ginMode string

	httpClient *http.Client
	router     *gin.Engine

	cache          *cache.LRUCache
	metricsService *metrics.MetricsService
	catalog        *catalog.Catalog
	sessions       *session.Store
	orchestrator   *orchestrator.Orchestrator
	records        records.Reader

	validClientKeys map[string]bool

	config config.ServerConfig

	rateLimiter *rateLimiter

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	closeOnce      sync.Once
	closeErr       error
}

// NewServer creates a new server instance
func NewServer(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required in ServerConfig")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required in ServerConfig")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	gen := cfg.Generation

	cfg.Logger.Info("Initializing server with provider %s", gen.Provider)

	httpClient := provider.NewHTTPClient(cfg.HTTPClientSettings)
	cacheService := cache.NewCache()

	metricsService := metrics.NewMetricsService(metrics.MetricsConfig{
		SaveInterval: core.MinSaveInterval,
		HistorySize:  core.HistoryBufferSize,
		Storage:      cfg.Storage,
		Logger:       log.Named(cfg.Logger, "metrics"),
	})

	if err := metricsService.LoadStats(); err != nil {
		cfg.Logger.Warn("Failed to load historical stats: %v", err)
	}

	gp := deps.Provider
	if gp == nil {
		var err error
		gp, err = provider.New(provider.Config{
			Name:          gen.Provider,
			APIKey:        gen.APIKey,
			GeminiBaseURL: gen.GeminiBaseURL,
			OpenAIBaseURL: gen.OpenAIBaseURL,
			HTTPClient:    httpClient,
			Logger:        log.Named(cfg.Logger, "provider"),
		})
		if err != nil {
			cacheService.Stop()
			_ = metricsService.Close()
			return nil, fmt.Errorf("failed to create generation provider: %w", err)
		}
	}

	reader := deps.Records
	if reader == nil {
		reader = records.NewMemoryReader()
		cfg.Logger.Warn("No records store configured, consultations run without patient profiles")
	}

	modelCatalog := catalog.New(catalog.Config{
		BaseURL:          gen.GeminiBaseURL,
		APIKey:           gen.APIKey,
		HTTPClient:       httpClient,
		FallbackModels:   gen.FallbackModels,
		ExcludedPatterns: gen.ExcludedPatterns,
		CacheTTL:         gen.CatalogCacheTTL,
		Cache:            cacheService,
		Logger:           log.Named(cfg.Logger, "catalog"),
		Metrics:          metricsService,
	})

	sessions := session.NewStore(session.Config{
		Provider:       gp,
		AttemptTimeout: gen.AttemptTimeout,
		IdleTTL:        gen.SessionIdleTTL,
		Logger:         log.Named(cfg.Logger, "session"),
		Metrics:        metricsService,
	})

	orch, err := orchestrator.New(orchestrator.Config{
		Catalog:        modelCatalog,
		Provider:       gp,
		Sessions:       sessions,
		AttemptTimeout: gen.AttemptTimeout,
		Logger:         log.Named(cfg.Logger, "cascade"),
		Metrics:        metricsService,
	})
	if err != nil {
		_ = sessions.Close()
		cacheService.Stop()
		_ = metricsService.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	validClientKeys := make(map[string]bool)
	for _, key := range cfg.ClientAPIKeys {
		validClientKeys[key] = true
	}

	if len(validClientKeys) == 0 {
		cfg.Logger.Warn("No client API keys configured")
	} else {
		cfg.Logger.Info("Loaded %d client API keys", len(validClientKeys))
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	server := &Server{
		port:            cfg.Port,
		ginMode:         cfg.GinMode,
		httpClient:      httpClient,
		cache:           cacheService,
		metricsService:  metricsService,
		catalog:         modelCatalog,
		sessions:        sessions,
		orchestrator:    orch,
		records:         reader,
		validClientKeys: validClientKeys,
		config:          cfg,
		rateLimiter:     newRateLimiter(cfg.RateLimit),
		shutdownCtx:     shutdownCtx,
		shutdownCancel:  shutdownCancel,
	}

	server.setupRoutes()

	return server, nil
}

// Run runs the server
func (s *Server) Run() error {
	s.setupGracefulShutdown()

	srv := s.newHTTPServer()

	go func() {
		<-s.shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.config.Logger.Error("Server shutdown error: %v", err)
		}
	}()

	s.config.Logger.Info("Server starting on port %s", s.port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// newHTTPServer leaves WriteTimeout unset: the cascade length follows the
// discovered candidate count, and every attempt is already bounded by the
// attempt timeout and the caller's context.
func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}
}

func (s *Server) setupGracefulShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-quit:
			s.config.Logger.Info("Shutdown signal received, shutting down gracefully...")
			s.shutdownCancel()
		case <-s.shutdownCtx.Done():
		}
		signal.Stop(quit)
	}()
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "sessions": s.sessions.Len()})
}

func (s *Server) getStatsData(c *gin.Context) {
	snap := s.metricsService.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"currentTime":    time.Now().Format(core.TimeFormatDateTime),
		"currentQPS":     fmt.Sprintf("%.3f", snap.QPS),
		"activeSessions": s.sessions.Len(),
		"stats":          snap,
	})
}

// Close releases every component. Safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		if s.shutdownCancel != nil {
			s.shutdownCancel()
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}

		var closeErr error

		if s.sessions != nil {
			if err := s.sessions.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close session store: %w", err))
			}
		}

		if s.metricsService != nil {
			if err := s.metricsService.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close metrics service: %w", err))
			}
		}

		if s.records != nil {
			if err := s.records.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close records reader: %w", err))
			}
		}

		if s.cache != nil {
			s.cache.Stop()
		}

		s.closeErr = closeErr
	})
	return s.closeErr
}
