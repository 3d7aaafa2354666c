package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/middleware"
	"github.com/gdmt-audit-server/internal/repository"
	"github.com/gdmt-audit-server/internal/service"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// ScoreSummarizer aggregates archived audit scores.
type ScoreSummarizer interface {
	SummarizeScores(ctx context.Context) ([]repository.ScoreSummary, error)
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	audits        *service.AuditService
	resolutions   *service.ResolutionService
	summarizer    ScoreSummarizer
	checks        map[string]HealthCheck
	upgrader      websocket.Upgrader
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
	startedAt     time.Time
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithHealthCheck adds a named dependency check to GET /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// WithScoreSummarizer enables GET /api/v1/audits/summary.
func WithScoreSummarizer(summarizer ScoreSummarizer) Option {
	return func(s *Server) {
		s.summarizer = summarizer
	}
}

// NewServer creates a new HTTP server instance
func NewServer(
	configManager domain.ConfigManager,
	audits *service.AuditService,
	resolutions *service.ResolutionService,
	logger *logrus.Logger,
	opts ...Option,
) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	if cfg.RateLimit.Enabled {
		router.Use(middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst).Middleware())
	}

	server := &Server{
		configManager: configManager,
		audits:        audits,
		resolutions:   resolutions,
		checks:        make(map[string]HealthCheck),
		upgrader:      newUpgrader(cfg.Server.AllowedOrigins),
		logger:        logger,
		router:        router,
		startedAt:     time.Now(),
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupRoutes(cfg.Server.RequestTimeout)

	return server
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes(requestTimeout time.Duration) {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")

	// The stream is long-lived and sits outside the request timeout.
	v1.GET("/resolutions/:id/stream", s.handleStream)

	timed := v1.Group("", middleware.RequestTimeout(requestTimeout))
	{
		timed.GET("/ruleset", s.handleRuleset)

		timed.POST("/audits", s.handleAuditAll)
		timed.POST("/audits/:domain", s.handleAudit)
		timed.GET("/audits/summary", s.handleScoreSummary)
		timed.GET("/audits/:id", s.handleGetAudit)
		timed.GET("/patients/:patient_id/audits", s.handleAuditHistory)
		timed.POST("/action-plans", s.handleActionPlan)

		timed.POST("/pathways", s.handlePathways)
		timed.POST("/resolutions", s.handleStartResolution)
		timed.GET("/resolutions", s.handleListResolutions)
		timed.GET("/resolutions/:id", s.handleGetResolution)
		timed.DELETE("/resolutions/:id", s.handleDeleteResolution)
		timed.POST("/resolutions/:id/events", s.handleResolutionEvent)
	}
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Correlation-ID")
		c.Header("Access-Control-Expose-Headers", "X-Correlation-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
