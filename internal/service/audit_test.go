package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdmt-audit-server/internal/cache"
	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/engine"
	"github.com/gdmt-audit-server/internal/ruleset"
)

func newTestAuditService(c domain.AuditCache, repo domain.AuditRepository) *AuditService {
	svc := NewAuditService(engine.New(ruleset.MustDefault()), AuditServiceConfig{
		Cache:      c,
		Repository: repo,
		CacheTTL:   time.Hour,
	}, quietLogger())
	svc.now = func() time.Time { return asOf }
	return svc
}

func TestAuditService_Audit(t *testing.T) {
	repo := &memoryRepository{}
	svc := newTestAuditService(nil, repo)

	res, err := svc.Audit(context.Background(), domain.HEART_FAILURE, hfPatient(
		domain.Medication{Class: domain.BETA_BLOCKER, DoseTier: domain.LOW_DOSE},
	), time.Time{})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "hf-001", res.PatientID)
	assert.Equal(t, asOf, res.GeneratedAt)
	assert.Len(t, res.Pillars, 4)
	assert.Equal(t, 1, repo.count())

	stored, err := svc.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, res, stored)
}

func TestAuditService_InvalidInput(t *testing.T) {
	svc := newTestAuditService(nil, nil)

	tests := []struct {
		name     string
		domain   domain.DomainID
		snapshot *domain.PatientSnapshot
		target   error
	}{
		{"Nil snapshot", domain.HEART_FAILURE, nil, domain.ErrInvalidSnapshot},
		{"Missing vitals", domain.HEART_FAILURE, &domain.PatientSnapshot{PatientID: "x"}, domain.ErrInvalidSnapshot},
		{"Unknown domain", domain.DomainID("oncology"), hfPatient(), domain.ErrInvalidDomain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Audit(context.Background(), tt.domain, tt.snapshot, asOf)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "unexpected error %v", err)
		})
	}
}

func TestAuditService_CacheHit(t *testing.T) {
	mem := cache.NewMemoryCache(16, time.Hour)
	repo := &memoryRepository{}
	svc := newTestAuditService(mem, repo)
	p := hfPatient()

	first, err := svc.Audit(context.Background(), domain.HEART_FAILURE, p, asOf)
	require.NoError(t, err)
	second, err := svc.Audit(context.Background(), domain.HEART_FAILURE, p, asOf.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.count(), "cached audits are not archived again")
	assert.Equal(t, int64(1), mem.Stats().Hits)

	third, err := svc.Audit(context.Background(), domain.HEART_FAILURE, p, asOf.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID, "a new reference day is a new audit")
}

func TestAuditService_ArchiveFailureIsNotFatal(t *testing.T) {
	repo := &memoryRepository{saveErr: errors.New("database unavailable")}
	svc := newTestAuditService(nil, repo)

	res, err := svc.Audit(context.Background(), domain.HEART_FAILURE, hfPatient(), asOf)
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestAuditService_AuditAllKeepsOrder(t *testing.T) {
	svc := newTestAuditService(nil, nil)
	ids := []domain.DomainID{domain.HYPERTENSION, domain.HEART_FAILURE, domain.DIABETES}

	results, err := svc.AuditAll(context.Background(), ids, hfPatient(), asOf)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, id := range ids {
		assert.Equal(t, id, results[i].Domain)
	}

	all, err := svc.AuditAll(context.Background(), nil, hfPatient(), asOf)
	require.NoError(t, err)
	assert.Len(t, all, len(svc.Domains()))

	_, err = svc.AuditAll(context.Background(), []domain.DomainID{domain.HEART_FAILURE, "oncology"}, hfPatient(), asOf)
	assert.True(t, errors.Is(err, domain.ErrInvalidDomain))
}

func TestAuditService_ActionPlanAndHistory(t *testing.T) {
	repo := &memoryRepository{}
	svc := newTestAuditService(nil, repo)

	res, err := svc.Audit(context.Background(), domain.HEART_FAILURE, hfPatient(), asOf)
	require.NoError(t, err)
	assert.NotEmpty(t, svc.ActionPlan(res))

	history, err := svc.History(context.Background(), "hf-001", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	empty := newTestAuditService(nil, nil)
	history, err = empty.History(context.Background(), "hf-001", 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = empty.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
