package mcp

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gdmt-audit-server/internal/cache"
	litecfg "github.com/gdmt-audit-server/internal/config"
	"github.com/gdmt-audit-server/internal/documents"
	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/engine"
	"github.com/gdmt-audit-server/internal/ruleset"
	"github.com/gdmt-audit-server/internal/service"
	"github.com/gdmt-audit-server/internal/tracking"
)

// LiteServer is a lightweight MCP server that requires no external databases.
// It uses in-memory caching and SQLite for persistence.
type LiteServer struct {
	config *litecfg.LiteConfig
	server *Server
	store  tracking.Store
	cache  *cache.MemoryCache
	logger *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithRecordStore sets a custom resolution record store.
func WithRecordStore(store tracking.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.store = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lite configuration: %w", err)
	}
	logger, err := litecfg.NewLogger(cfg.LoggingConfig())
	if err != nil {
		return nil, err
	}
	server := &LiteServer{
		config: cfg,
		logger: logger,
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	rs, err := ruleset.Load(cfg.RulesetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load ruleset: %w", err)
	}

	docs, err := documents.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load document templates: %w", err)
	}
	if err := docs.Validate(rs); err != nil {
		return nil, fmt.Errorf("document templates do not cover the ruleset: %w", err)
	}

	server.cache = cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)

	if server.store == nil {
		store, err := tracking.NewSQLiteStore(cfg.RecordsDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create record store: %w", err)
		}
		server.store = store
	}

	audits := service.NewAuditService(engine.New(rs), service.AuditServiceConfig{
		Cache:    server.cache,
		CacheTTL: cfg.CacheTTL,
	}, server.logger)
	resolutions := service.NewResolutionService(rs, docs, server.store, service.NewBroadcaster(), server.logger)

	server.server = NewServer(domain.MCPConfig{ServerName: "gdmt-audit-server-lite"}, audits, resolutions, server.logger)

	server.logger.WithFields(logrus.Fields{
		"ruleset_version": rs.Version(),
		"data_dir":        cfg.DataDir,
	}).Info("Lite server initialized successfully")
	return server, nil
}

// Start serves MCP over stdio.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.WithField("transport_type", s.config.Transport).Info("Starting GDMT audit MCP server (lite)")
	return s.server.Run(ctx)
}

// Server returns the underlying MCP server.
func (s *LiteServer) Server() *Server {
	return s.server
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close record store")
			return err
		}
	}
	return nil
}

// GetRecordStore returns the record store for external access.
func (s *LiteServer) GetRecordStore() tracking.Store {
	return s.store
}

// GetCache returns the memory cache for external access.
func (s *LiteServer) GetCache() *cache.MemoryCache {
	return s.cache
}
