// Package main provides the lightweight MCP entry point of the GDMT audit server.
// It requires no external databases: audits are cached in memory and resolution records
// are kept in SQLite.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdmt-audit-server/internal/config"
	"github.com/gdmt-audit-server/internal/mcp"
)

func main() {
	cfg, err := config.LoadLiteConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.LoggingConfig())
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	server, err := mcp.NewLiteServer(cfg, mcp.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("MCP server failed")
		return
	}
	logger.Info("GDMT audit MCP server (lite) stopped")
}
