package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/gdmt-audit-server/internal/api"
	"github.com/gdmt-audit-server/internal/cache"
	"github.com/gdmt-audit-server/internal/config"
	"github.com/gdmt-audit-server/internal/database"
	"github.com/gdmt-audit-server/internal/documents"
	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/engine"
	"github.com/gdmt-audit-server/internal/repository"
	"github.com/gdmt-audit-server/internal/ruleset"
	"github.com/gdmt-audit-server/internal/service"
	"github.com/gdmt-audit-server/internal/tracking"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rs, err := ruleset.Load(cfg.Ruleset.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load ruleset")
	}
	docs, err := documents.NewRegistry()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load document templates")
	}
	if err := docs.Validate(rs); err != nil {
		logger.WithError(err).Fatal("Document templates do not cover the ruleset")
	}

	dbConfig := database.ConfigFrom(cfg.Database)
	db, err := database.NewConnection(ctx, dbConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	runner, err := database.NewMigrationRunner(dbConfig.URL(), cfg.Database.MigrationsPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create migration runner")
	}
	if err := runner.Up(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}
	runner.Close()

	store, err := tracking.NewPostgresStoreFromURL(dbConfig.URL())
	if err != nil {
		logger.WithError(err).Fatal("Failed to open resolution record store")
	}
	defer store.Close()

	auditCache, redisCache := buildCache(cfg.Cache, logger)
	if redisCache != nil {
		defer redisCache.Close()
	}

	auditConfig := service.AuditServiceConfig{CacheTTL: cfg.Cache.DefaultTTL}
	if auditCache != nil {
		auditConfig.Cache = auditCache
	}
	auditRepo := repository.NewAuditRepository(db.Pool, logger)
	if cfg.Database.ArchiveAudits {
		auditConfig.Repository = auditRepo
	}

	audits := service.NewAuditService(engine.New(rs), auditConfig, logger)
	resolutions := service.NewResolutionService(rs, docs, store, service.NewBroadcaster(), logger)

	opts := []api.Option{
		api.WithHealthCheck("database", db.Health),
		api.WithScoreSummarizer(auditRepo),
	}
	if redisCache != nil {
		opts = append(opts, api.WithHealthCheck("redis", redisCache.Ping))
	}
	server := api.NewServer(configManager, audits, resolutions, logger, opts...)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"host":            cfg.Server.Host,
		"port":            cfg.Server.Port,
		"ruleset_version": rs.Version(),
	}).Info("Starting GDMT audit server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

// buildCache returns the audit cache and, when Redis is reachable, the shared tier. An
// unreachable Redis degrades to the in-process tier only.
func buildCache(cfg domain.CacheConfig, logger *logrus.Logger) (domain.AuditCache, *cache.RedisCache) {
	if !cfg.Enabled {
		return nil, nil
	}
	memory := cache.NewMemoryCache(cfg.MaxItems, cfg.DefaultTTL)

	redisCache, err := cache.NewRedisCache(cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, using in-process audit cache only")
		return memory, nil
	}
	return cache.NewTieredCache(memory, redisCache), redisCache
}
