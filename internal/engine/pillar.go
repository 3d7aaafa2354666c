package engine

import (
	"fmt"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
)

// PillarInput is what the evaluator needs for one therapy class.
type PillarInput struct {
	Class      domain.TherapyClass
	Medication domain.Medication
	HasRecord  bool
	Detection  domain.Detection
	Absolute   []domain.BlockerCode
	Missing    []string
}

// EvaluatePillar assigns exactly one status by precedence:
//  1. an active prescription is ON_TARGET at HIGH, otherwise UNDERDOSED
//  2. an absolute contraindication is CONTRAINDICATED
//  3. only data-availability blockers is UNKNOWN
//  4. anything else is MISSING
func EvaluatePillar(in PillarInput) domain.PillarResult {
	res := domain.PillarResult{
		Pillar:             in.Class,
		DoseTier:           domain.NOT_PRESCRIBED,
		Blockers:           in.Detection.Codes(),
		MissingInformation: append([]string{}, in.Missing...),
	}
	if in.HasRecord && in.Medication.DoseTier.IsValid() {
		res.DoseTier = in.Medication.DoseTier
	}

	blockers := in.Detection.Blockers()
	switch {
	case in.HasRecord && in.Medication.Active():
		if in.Medication.DoseTier == domain.HIGH_DOSE {
			res.Status = domain.ON_TARGET
			res.Blockers = []domain.BlockerCode{}
		} else {
			res.Status = domain.UNDERDOSED
		}
	case blockers.ContainsAny(in.Absolute...):
		res.Status = domain.CONTRAINDICATED
	case blockers.OnlyDataAvailability():
		res.Status = domain.UNKNOWN
	default:
		res.Status = domain.MISSING
	}
	return res
}

// MissingInformation lists the absent or stale data points the class depends on. The result
// does not depend on the pillar status.
func MissingInformation(p *domain.PatientSnapshot, t ruleset.Thresholds, fresh Freshness, w ruleset.Staleness) []string {
	var out []string
	if t.HasLabLimit() {
		switch {
		case fresh.LabsUnknown:
			out = append(out, "Date of most recent laboratory results")
		case fresh.LabsStale:
			out = append(out, fmt.Sprintf("Repeat basic metabolic panel (labs older than %d days)", w.LabsDays))
		}
	}
	if t.PotassiumCeiling != nil && p.Potassium == nil {
		out = append(out, "Serum potassium")
	}
	if (t.EGFRInitiation != nil || t.EGFRContinuation != nil) && p.EGFR == nil {
		out = append(out, "Estimated glomerular filtration rate (eGFR)")
	}
	if t.HasVitalsLimit() && fresh.VitalsStale {
		out = append(out, fmt.Sprintf("Updated vital signs (older than %d days)", w.VitalsDays))
	}
	return out
}
