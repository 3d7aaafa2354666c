package domain

import (
	"context"
	"time"
)

// AuditRepository defines the interface for audit result persistence
type AuditRepository interface {
	SaveAudit(ctx context.Context, audit *AuditResult) error
	GetAudit(ctx context.Context, id string) (*AuditResult, error)
	ListAudits(ctx context.Context, patientID string, limit int) ([]*AuditResult, error)
}

// ResolutionStore defines the interface for resolution record persistence
type ResolutionStore interface {
	Save(ctx context.Context, record *ResolutionRecord) error
	Get(ctx context.Context, id string) (*ResolutionRecord, error)
	List(ctx context.Context, filter ResolutionFilter) ([]*ResolutionRecord, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// ResolutionFilter narrows a ResolutionStore listing. Zero values match everything.
type ResolutionFilter struct {
	PatientID string
	Status    ResolutionStatus
	Limit     int
	Offset    int
}

// AuditCache stores recent audit results keyed by a snapshot fingerprint
type AuditCache interface {
	Get(ctx context.Context, key string) (*AuditResult, bool)
	Set(ctx context.Context, key string, result *AuditResult, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
