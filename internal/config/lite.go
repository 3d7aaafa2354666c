package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gdmt-audit-server/internal/domain"
)

// Cache bounds for the standalone server.
const (
	minCacheTTL   = time.Second
	maxCacheTTL   = 24 * time.Hour
	maxCacheItems = 1_000_000
)

// LiteConfig configures the standalone MCP server: in-memory audit cache, SQLite records,
// stdio transport and no external services.
type LiteConfig struct {
	DataDir       string
	CacheMaxItems int
	CacheTTL      time.Duration
	// RulesetPath is a Guideline-as-Code file. Empty selects the embedded ruleset.
	RulesetPath string
	Transport   string
	LogLevel    string
	LogFormat   string
}

// DefaultLiteConfig returns the standalone defaults. Data lives under ~/.gdmt-audit.
func DefaultLiteConfig() *LiteConfig {
	dataDir := ".gdmt-audit"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, dataDir)
	}
	return &LiteConfig{
		DataDir:       dataDir,
		CacheMaxItems: 1000,
		CacheTTL:      15 * time.Minute,
		Transport:     "stdio",
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

type liteSetter func(c *LiteConfig, raw string) error

// liteEnv maps each GDMT_* variable to the field it sets. Unset or empty variables keep the
// default.
var liteEnv = []struct {
	key string
	set liteSetter
}{
	{"GDMT_DATA_DIR", func(c *LiteConfig, raw string) error { c.DataDir = raw; return nil }},
	{"GDMT_CACHE_MAX_ITEMS", func(c *LiteConfig, raw string) error {
		n, err := strconv.Atoi(raw)
		c.CacheMaxItems = n
		return err
	}},
	{"GDMT_CACHE_TTL", func(c *LiteConfig, raw string) error {
		d, err := time.ParseDuration(raw)
		c.CacheTTL = d
		return err
	}},
	{"GDMT_RULESET_PATH", func(c *LiteConfig, raw string) error { c.RulesetPath = raw; return nil }},
	{"GDMT_TRANSPORT", func(c *LiteConfig, raw string) error { c.Transport = strings.ToLower(raw); return nil }},
	{"GDMT_LOG_LEVEL", func(c *LiteConfig, raw string) error { c.LogLevel = strings.ToLower(raw); return nil }},
	{"GDMT_LOG_FORMAT", func(c *LiteConfig, raw string) error { c.LogFormat = strings.ToLower(raw); return nil }},
}

// LoadLiteConfig applies GDMT_* environment overrides to the defaults, resolves the data
// directory and ruleset paths and validates the result. Malformed values are errors.
func LoadLiteConfig() (*LiteConfig, error) {
	cfg := DefaultLiteConfig()
	for _, e := range liteEnv {
		raw, ok := os.LookupEnv(e.key)
		if !ok || raw == "" {
			continue
		}
		if err := e.set(cfg, raw); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", e.key, raw, err)
		}
	}
	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolvePaths expands a leading ~ and makes DataDir and RulesetPath absolute.
func (c *LiteConfig) ResolvePaths() error {
	var err error
	if c.DataDir, err = absPath(c.DataDir); err != nil {
		return fmt.Errorf("invalid data directory: %w", err)
	}
	if c.RulesetPath, err = absPath(c.RulesetPath); err != nil {
		return fmt.Errorf("invalid ruleset path: %w", err)
	}
	return nil
}

func absPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}

// Validate checks cache bounds, transport, logging and that a configured ruleset is a
// readable file. All problems are reported together.
func (c *LiteConfig) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data directory is required"))
	}
	if c.CacheMaxItems <= 0 || c.CacheMaxItems > maxCacheItems {
		errs = append(errs, fmt.Errorf("cache max items must be between 1 and %d, got %d", maxCacheItems, c.CacheMaxItems))
	}
	if c.CacheTTL < minCacheTTL || c.CacheTTL > maxCacheTTL {
		errs = append(errs, fmt.Errorf("cache TTL must be between %s and %s, got %s", minCacheTTL, maxCacheTTL, c.CacheTTL))
	}
	if c.Transport != "stdio" {
		errs = append(errs, fmt.Errorf("unsupported transport %q: only stdio is available", c.Transport))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level: %w", err))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be json or text", c.LogFormat))
	}
	if c.RulesetPath != "" {
		info, err := os.Stat(c.RulesetPath)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("ruleset file: %w", err))
		case info.IsDir():
			errs = append(errs, fmt.Errorf("ruleset path %s is a directory", c.RulesetPath))
		}
	}
	return errors.Join(errs...)
}

// LoggingConfig returns the logging section for NewLogger. Logs go to stderr because stdout
// carries the MCP protocol.
func (c *LiteConfig) LoggingConfig() domain.LoggingConfig {
	return domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat, Output: "stderr"}
}

// RecordsDBPath returns the path to the resolution records SQLite database.
func (c *LiteConfig) RecordsDBPath() string {
	return filepath.Join(c.DataDir, "resolutions.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data and export directories.
func (c *LiteConfig) EnsureDataDir() error {
	return os.MkdirAll(c.ExportDir(), 0o755)
}
