package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdmt-audit-server/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestManager_Defaults(t *testing.T) {
	m, err := NewManagerFromFile(writeConfig(t, "environment: development\n"))
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
	assert.Empty(t, cfg.Server.AllowedOrigins)
	assert.Equal(t, "gdmt_audit", cfg.Database.Database)
	assert.True(t, cfg.Database.ArchiveAudits)
	assert.Equal(t, 15*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 1000, cfg.Cache.MaxItems)
	assert.Equal(t, 20.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "gdmt-audit-server", cfg.MCP.ServerName)
	assert.True(t, m.IsDevelopment())
	assert.False(t, m.IsProduction())
	assert.NoError(t, m.Validate())
}

func TestManager_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
environment: production
server:
  port: 9000
  allowed_origins:
    - https://clinic.example.org
database:
  host: db.internal
  username: gdmt
  password: secret
ruleset:
  path: /etc/gdmt/ruleset.yaml
`)
	t.Setenv("GDMT_LOGGING_LEVEL", "debug")

	m, err := NewManagerFromFile(path)
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 9000, m.GetServerConfig().Port)
	assert.Equal(t, []string{"https://clinic.example.org"}, m.GetServerConfig().AllowedOrigins)
	assert.Equal(t, "db.internal", m.GetDatabaseConfig().Host)
	assert.Equal(t, "/etc/gdmt/ruleset.yaml", cfg.Ruleset.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, m.IsProduction())
	assert.Equal(t,
		"host=db.internal port=5432 user=gdmt password=secret dbname=gdmt_audit sslmode=disable",
		m.GetDatabaseConnectionString())
	assert.Equal(t, "redis://localhost:6379", m.GetRedisConnectionString())
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"Bad port", "server:\n  port: 70000\n", "invalid server port"},
		{"TLS without cert", "server:\n  tls_enabled: true\n", "TLS requires"},
		{"Missing redis", "cache:\n  redis_url: \"\"\n", "Redis URL"},
		{"Bad rate limit", "rate_limit:\n  burst: 0\n", "rate limit"},
		{"Bad log level", "logging:\n  level: loud\n", "invalid log level"},
		{"Bad log format", "logging:\n  format: xml\n", "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManagerFromFile(writeConfig(t, tt.yaml))
			require.NoError(t, err)

			err = m.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestManager_Reload(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	m, err := NewManagerFromFile(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0644))
	require.NoError(t, m.Reload())
	assert.Equal(t, 9100, m.GetServerConfig().Port)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(domain.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	path := filepath.Join(t.TempDir(), "server.log")
	logger, err = NewLogger(domain.LoggingConfig{Output: path})
	require.NoError(t, err)
	logger.Info("hello")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)

	_, err = NewLogger(domain.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}
