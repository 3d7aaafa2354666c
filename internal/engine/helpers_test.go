package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
)

var asOf = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func fptr(v float64) *float64 { return &v }

func daysAgo(n int) *time.Time {
	t := asOf.AddDate(0, 0, -n)
	return &t
}

func testRuleset() *ruleset.Ruleset {
	return ruleset.MustDefault()
}

// hfPatient is a heart failure patient with fresh, unremarkable labs and vitals.
func hfPatient(meds ...domain.Medication) *domain.PatientSnapshot {
	return &domain.PatientSnapshot{
		PatientID:   "hf-001",
		SBP:         118,
		HeartRate:   72,
		Potassium:   fptr(4.2),
		EGFR:        fptr(65),
		EF:          fptr(30),
		LabsDate:    daysAgo(3),
		VitalsDate:  daysAgo(1),
		Medications: meds,
	}
}

func med(class domain.TherapyClass, tier domain.DoseTier) domain.Medication {
	return domain.Medication{Class: class, DoseTier: tier}
}

func pillarOf(t *testing.T, res *domain.AuditResult, class domain.TherapyClass) domain.PillarResult {
	t.Helper()
	p, ok := res.Pillar(class)
	require.True(t, ok, "pillar %s not evaluated", class)
	return p
}
