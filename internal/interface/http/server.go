// Package http implements the REST API of the risk dashboard: stateless
// population queries, intervention commands and session-bound views.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alem-hub/wellness-hub/config"
	"github.com/alem-hub/wellness-hub/internal/application/command"
	"github.com/alem-hub/wellness-hub/internal/application/eventhandler"
	"github.com/alem-hub/wellness-hub/internal/application/query"
	"github.com/alem-hub/wellness-hub/internal/application/view"
	"github.com/alem-hub/wellness-hub/internal/interface/http/handlers"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// MaxBodyBytes - maximum size of request bodies.
	MaxBodyBytes int64

	// AllowedOrigins - allowed origins for CORS ("*" for any).
	AllowedOrigins []string

	// EnableMetrics - expose Prometheus metrics at MetricsPath.
	EnableMetrics bool
	MetricsPath   string

	// RateLimitPerMinute - requests per minute per IP (0 = disabled).
	RateLimitPerMinute int

	// Version is reported by the root and health endpoints.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20, // 1 MB
		MaxBodyBytes:       1 << 20,
		AllowedOrigins:     []string{"*"},
		EnableMetrics:      true,
		MetricsPath:        "/metrics",
		RateLimitPerMinute: 600,
	}
}

// ConfigFrom derives the server configuration from the application config.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.Host = cfg.HTTP.Host
	c.Port = cfg.HTTP.Port
	c.ReadTimeout = cfg.HTTP.ReadTimeout
	c.WriteTimeout = cfg.HTTP.WriteTimeout
	c.AllowedOrigins = cfg.HTTP.AllowedOrigins
	c.EnableMetrics = cfg.Observability.MetricsEnabled
	c.MetricsPath = cfg.Observability.MetricsPath
	c.Version = cfg.App.Version
	return c
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Query Handlers (CQRS Read Side)
	ListStudentsHandler      *query.ListStudentsHandler
	GetStudentProfileHandler *query.GetStudentProfileHandler
	GetSummaryHandler        *query.GetSummaryHandler
	ListIndicatorsHandler    *query.ListIndicatorsHandler
	GetAuditTrailHandler     *query.GetAuditTrailHandler

	// Command Handlers (CQRS Write Side)
	CreateInterventionHandler     *command.CreateInterventionHandler
	TransitionInterventionHandler *command.TransitionInterventionHandler

	// Dashboard sessions
	Sessions *view.Sessions

	// Event projections
	Feed          *eventhandler.OnInterventionChangedHandler
	SourceMonitor *eventhandler.OnSourceDegradedHandler

	// Feature flags; nil enables everything.
	Features *config.FeatureFlags

	// Health Check Dependencies
	HealthChecker handlers.HealthChecker

	// Logger
	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *gin.Engine
	logger     *logger.Logger

	// Server state
	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: gin.New(),
		logger: deps.Logger,
	}

	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))
	if s.deps.HealthChecker == nil {
		s.deps.HealthChecker = handlers.NewNoopHealthChecker()
	}

	useJSONFieldNames()
	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// setupMiddleware installs the middleware in execution order.
func (s *Server) setupMiddleware() {
	s.router.Use(
		handlers.RequestID(s.logger),
		handlers.Recovery(s.logger),
		handlers.RequestLogger(s.logger),
		handlers.Metrics(),
		handlers.CORS(s.config.AllowedOrigins),
		handlers.SecurityHeaders(),
	)
	if s.config.MaxBodyBytes > 0 {
		s.router.Use(handlers.RequestSizeLimit(s.config.MaxBodyBytes))
	}
	if s.config.RateLimitPerMinute > 0 {
		s.router.Use(handlers.NewRateLimiter(s.config.RateLimitPerMinute, time.Minute).Middleware())
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/healthz", s.handleHealth) // Kubernetes alias
	s.router.GET("/ready", s.handleReady)
	s.router.GET("/live", s.handleLive)

	if s.config.EnableMetrics {
		path := s.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(promhttp.Handler()))
	}

	api := s.router.Group("/api/v1")

	// ─────────────────────────────────────────────────────────────────────────
	// Population
	// ─────────────────────────────────────────────────────────────────────────
	api.GET("/students", s.handleListStudents)
	api.GET("/students/:id", s.handleGetStudent)
	api.GET("/indicators", s.handleListIndicators)
	api.GET("/summary", s.handleGetSummary)

	// ─────────────────────────────────────────────────────────────────────────
	// Interventions
	// ─────────────────────────────────────────────────────────────────────────
	api.POST("/students/:id/interventions", s.handleCreateIntervention)
	api.POST("/interventions/:id/transitions", s.handleTransition)
	api.GET("/interventions/:id/audit", s.handleGetAuditTrail)
	api.GET("/activity", s.requireFeature(config.FeatureActivityFeed), s.handleActivity)
	api.GET("/source/health", s.handleSourceHealth)

	// ─────────────────────────────────────────────────────────────────────────
	// Dashboard Sessions
	// ─────────────────────────────────────────────────────────────────────────
	sessions := api.Group("/sessions", s.requireFeature(config.FeatureSessionAPI))
	sessions.POST("", s.handleOpenSession)
	sessions.GET("/:sid", s.handleSessionView)
	sessions.DELETE("/:sid", s.handleCloseSession)
	sessions.POST("/:sid/reload", s.handleSessionReload)
	sessions.POST("/:sid/query", s.handleSessionQuery)
	sessions.POST("/:sid/band", s.handleSessionBand)
	sessions.POST("/:sid/select", s.handleSessionSelect)
	sessions.POST("/:sid/back", s.handleSessionBack)
	sessions.DELETE("/:sid/banner", s.handleSessionDismissBanner)
	sessions.POST("/:sid/interventions/:id/transitions", s.handleSessionTransition)
}

// requireFeature answers 404 while the feature is disabled.
func (s *Server) requireFeature(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Features != nil && !s.deps.Features.IsEnabled(name) {
			respondErrorCode(c, http.StatusNotFound, "feature_disabled", "feature "+name+" is disabled")
			c.Abort()
			return
		}
		c.Next()
	}
}

// featureEnabled reports whether a feature is on.
func (s *Server) featureEnabled(name string) bool {
	return s.deps.Features == nil || s.deps.Features.IsEnabled(name)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}
