package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.RulesetPath)
	assert.NoError(t, cfg.Validate())
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg, err := LoadLiteConfig()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, "stdio", cfg.Transport)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)
	rules := writeRuleset(t, t.TempDir())

	t.Setenv("GDMT_DATA_DIR", "/tmp/test-gdmt")
	t.Setenv("GDMT_CACHE_MAX_ITEMS", "500")
	t.Setenv("GDMT_CACHE_TTL", "5m")
	t.Setenv("GDMT_RULESET_PATH", rules)
	t.Setenv("GDMT_LOG_LEVEL", "DEBUG")
	t.Setenv("GDMT_LOG_FORMAT", "text")

	cfg, err := LoadLiteConfig()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test-gdmt", cfg.DataDir)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, rules, cfg.RulesetPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadLiteConfig_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		expected string
	}{
		{"Non-numeric cache size", "GDMT_CACHE_MAX_ITEMS", "many", "GDMT_CACHE_MAX_ITEMS"},
		{"Negative cache size", "GDMT_CACHE_MAX_ITEMS", "-3", "cache max items"},
		{"Unparseable TTL", "GDMT_CACHE_TTL", "soon", "GDMT_CACHE_TTL"},
		{"TTL below a second", "GDMT_CACHE_TTL", "500ms", "cache TTL"},
		{"TTL above a day", "GDMT_CACHE_TTL", "25h", "cache TTL"},
		{"Network transport", "GDMT_TRANSPORT", "sse", "unsupported transport"},
		{"Unknown log level", "GDMT_LOG_LEVEL", "loud", "invalid log level"},
		{"Unknown log format", "GDMT_LOG_FORMAT", "xml", "invalid log format"},
		{"Missing ruleset file", "GDMT_RULESET_PATH", "/nonexistent/ruleset.yaml", "ruleset file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := LoadLiteConfig()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.expected)
		})
	}
}

func TestLiteConfig_ValidateBounds(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *LiteConfig)
		wantErr bool
	}{
		{"Defaults", func(c *LiteConfig) {}, false},
		{"Shortest TTL", func(c *LiteConfig) { c.CacheTTL = time.Second }, false},
		{"Longest TTL", func(c *LiteConfig) { c.CacheTTL = 24 * time.Hour }, false},
		{"Zero TTL", func(c *LiteConfig) { c.CacheTTL = 0 }, true},
		{"Single cache entry", func(c *LiteConfig) { c.CacheMaxItems = 1 }, false},
		{"Zero cache entries", func(c *LiteConfig) { c.CacheMaxItems = 0 }, true},
		{"Oversized cache", func(c *LiteConfig) { c.CacheMaxItems = maxCacheItems + 1 }, true},
		{"Empty data directory", func(c *LiteConfig) { c.DataDir = "" }, true},
		{"Empty transport", func(c *LiteConfig) { c.Transport = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLiteConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLiteConfig_ValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultLiteConfig()
	cfg.CacheTTL = 0
	cfg.LogFormat = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache TTL")
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestLiteConfig_RulesetPathResolution(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	rules := writeRuleset(t, home)

	t.Run("Tilde expands to the home directory", func(t *testing.T) {
		clearEnvVars(t)
		t.Setenv("GDMT_RULESET_PATH", "~/ruleset.yaml")
		t.Setenv("GDMT_DATA_DIR", "~/data")

		cfg, err := LoadLiteConfig()
		require.NoError(t, err)
		assert.Equal(t, rules, cfg.RulesetPath)
		assert.Equal(t, filepath.Join(home, "data"), cfg.DataDir)
	})

	t.Run("Directory is not a ruleset", func(t *testing.T) {
		clearEnvVars(t)
		t.Setenv("GDMT_RULESET_PATH", home)

		_, err := LoadLiteConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is a directory")
	})

	t.Run("Relative path becomes absolute", func(t *testing.T) {
		cfg := &LiteConfig{DataDir: "data", RulesetPath: "rules/ruleset.yaml"}
		require.NoError(t, cfg.ResolvePaths())

		wd, err := os.Getwd()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(wd, "data"), cfg.DataDir)
		assert.Equal(t, filepath.Join(wd, "rules", "ruleset.yaml"), cfg.RulesetPath)
	})
}

func TestLiteConfig_LoggingConfig(t *testing.T) {
	cfg := DefaultLiteConfig()
	cfg.LogLevel = "warn"

	lc := cfg.LoggingConfig()
	assert.Equal(t, "warn", lc.Level)
	assert.Equal(t, "json", lc.Format)
	assert.Equal(t, "stderr", lc.Output)

	logger, err := NewLogger(lc)
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, logger.Out)
}

func TestLiteConfig_Paths(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.gdmt-audit"}

	assert.Equal(t, "/home/user/.gdmt-audit/resolutions.db", cfg.RecordsDBPath())
	assert.Equal(t, "/home/user/.gdmt-audit/exports", cfg.ExportDir())
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: filepath.Join(t.TempDir(), "gdmt")}

	require.NoError(t, cfg.EnsureDataDir())

	_, err := os.Stat(cfg.DataDir)
	assert.NoError(t, err)
	_, err = os.Stat(cfg.ExportDir())
	assert.NoError(t, err)
}

func writeRuleset(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "ruleset.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: test\n"), 0o644))
	return path
}

// clearEnvVars unsets every GDMT_* variable for the test and restores it afterwards.
func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, e := range liteEnv {
		t.Setenv(e.key, "")
		os.Unsetenv(e.key)
	}
}
