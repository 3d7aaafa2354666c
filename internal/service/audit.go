package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gdmt-audit-server/internal/cache"
	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/engine"
	"github.com/gdmt-audit-server/internal/ruleset"
)

// AuditService runs audits through the engine with caching and archiving around it.
type AuditService struct {
	engine   *engine.Engine
	cache    domain.AuditCache
	repo     domain.AuditRepository
	cacheTTL time.Duration
	logger   *logrus.Logger
	now      func() time.Time
}

// AuditServiceConfig configures an AuditService. Cache and Repository are optional.
type AuditServiceConfig struct {
	Cache      domain.AuditCache
	Repository domain.AuditRepository
	CacheTTL   time.Duration
}

// NewAuditService creates a new audit service
func NewAuditService(e *engine.Engine, config AuditServiceConfig, logger *logrus.Logger) *AuditService {
	return &AuditService{
		engine:   e,
		cache:    config.Cache,
		repo:     config.Repository,
		cacheTTL: config.CacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// Ruleset returns the ruleset the engine evaluates.
func (s *AuditService) Ruleset() *ruleset.Ruleset {
	return s.engine.Ruleset()
}

// Domains returns the domains the engine can audit.
func (s *AuditService) Domains() []domain.DomainID {
	return s.engine.Domains()
}

// Audit evaluates one domain. A zero asOf means now.
func (s *AuditService) Audit(ctx context.Context, id domain.DomainID, p *domain.PatientSnapshot, asOf time.Time) (*domain.AuditResult, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: snapshot is required", domain.ErrInvalidSnapshot)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}

	key, err := cache.Key(id, p, asOf, s.engine.Ruleset().Version())
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if res, ok := s.cache.Get(ctx, key); ok {
			s.logger.WithFields(logrus.Fields{
				"patient_id": p.PatientID,
				"domain":     id,
				"audit_id":   res.ID,
			}).Debug("Audit served from cache")
			return res, nil
		}
	}

	startTime := time.Now()
	res, err := s.engine.Audit(id, p, asOf)
	if err != nil {
		return nil, err
	}
	res.ID = uuid.NewString()
	res.PatientID = p.PatientID

	s.logger.WithFields(logrus.Fields{
		"audit_id":     res.ID,
		"patient_id":   res.PatientID,
		"domain":       res.Domain,
		"category":     res.Category,
		"score":        res.Score.Score,
		"normalized":   res.Score.Normalized,
		"pillar_count": len(res.Pillars),
		"incomplete":   res.Score.IsIncomplete,
		"duration_ms":  time.Since(startTime).Milliseconds(),
	}).Info("Audit completed")

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, res, s.cacheTTL); err != nil {
			s.logger.WithError(err).Warn("Failed to cache audit result")
		}
	}
	if s.repo != nil {
		if err := s.repo.SaveAudit(ctx, res); err != nil {
			s.logger.WithError(err).WithField("audit_id", res.ID).Warn("Failed to archive audit result")
		}
	}
	return res, nil
}

// AuditAll evaluates several domains concurrently. Results follow the order of ids; an empty
// ids audits every domain.
func (s *AuditService) AuditAll(ctx context.Context, ids []domain.DomainID, p *domain.PatientSnapshot, asOf time.Time) ([]*domain.AuditResult, error) {
	if len(ids) == 0 {
		ids = s.engine.Domains()
	}
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}

	results := make([]*domain.AuditResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			res, err := s.Audit(gctx, id, p, asOf)
			if err != nil {
				return fmt.Errorf("audit %s: %w", id, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ActionPlan derives the prioritized action items for an audit.
func (s *AuditService) ActionPlan(result *domain.AuditResult) []domain.ActionItem {
	return engine.GenerateActionPlan(result, s.engine.Ruleset())
}

// Get returns an archived audit.
func (s *AuditService) Get(ctx context.Context, id string) (*domain.AuditResult, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit %s: %w", id, domain.ErrNotFound)
	}
	return s.repo.GetAudit(ctx, id)
}

// History returns a patient's archived audits, newest first.
func (s *AuditService) History(ctx context.Context, patientID string, limit int) ([]*domain.AuditResult, error) {
	if s.repo == nil {
		return []*domain.AuditResult{}, nil
	}
	return s.repo.ListAudits(ctx, patientID, limit)
}
