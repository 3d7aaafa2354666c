package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gdmt-audit-server/internal/domain"
)

var asOf = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func fptr(v float64) *float64 { return &v }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func hfPatient(meds ...domain.Medication) *domain.PatientSnapshot {
	labs := asOf.AddDate(0, 0, -3)
	vitals := asOf.AddDate(0, 0, -1)
	return &domain.PatientSnapshot{
		PatientID:   "hf-001",
		SBP:         118,
		HeartRate:   72,
		Potassium:   fptr(4.2),
		EGFR:        fptr(65),
		EF:          fptr(30),
		A1C:         fptr(7.9),
		LabsDate:    &labs,
		VitalsDate:  &vitals,
		Medications: meds,
	}
}

// memoryRepository is an in-memory audit archive.
type memoryRepository struct {
	mu      sync.Mutex
	audits  []*domain.AuditResult
	saveErr error
}

func (r *memoryRepository) SaveAudit(_ context.Context, res *domain.AuditResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.audits = append(r.audits, res)
	return nil
}

func (r *memoryRepository) GetAudit(_ context.Context, id string) (*domain.AuditResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.audits {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memoryRepository) ListAudits(_ context.Context, patientID string, limit int) ([]*domain.AuditResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.AuditResult{}
	for i := len(r.audits) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if r.audits[i].PatientID == patientID {
			out = append(out, r.audits[i])
		}
	}
	return out, nil
}

func (r *memoryRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.audits)
}
