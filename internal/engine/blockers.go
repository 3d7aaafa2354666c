package engine

import (
	"time"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
)

// perioperativeClass is the only class held around surgery.
const perioperativeClass = domain.SGLT2I

// Contraindication is a domain-specific flag that blocks one therapy class.
type Contraindication struct {
	Class    domain.TherapyClass
	Code     domain.BlockerCode
	Absolute bool
	Present  func(h domain.PatientHistory) bool
}

// DetectionInput bundles everything the blocker detector reads.
type DetectionInput struct {
	Class      domain.TherapyClass
	Initiation bool
	Thresholds ruleset.Thresholds
	Staleness  ruleset.Staleness
	Snapshot   *domain.PatientSnapshot
	AsOf       time.Time
	Extra      []Contraindication
}

// DetectBlockers evaluates every blocker rule for one therapy class. Absent measurements are
// never treated as passing: a limit that cannot be checked yields LABS_UNAVAILABLE. When nothing
// fires the detection reports NoBarrierFound.
func DetectBlockers(in DetectionInput) domain.Detection {
	p := in.Snapshot
	t := in.Thresholds
	var set domain.BlockerSet

	// Vitals
	if t.SBPFloor != nil && p.SBP > 0 && p.SBP < *t.SBPFloor {
		set = set.With(domain.HYPOTENSION)
	}
	if t.HRFloor != nil && p.HeartRate > 0 && p.HeartRate < *t.HRFloor {
		set = set.With(domain.BRADYCARDIA)
	}

	// Labs
	unavailable := false
	if t.PotassiumCeiling != nil {
		if p.Potassium == nil {
			unavailable = true
		} else if *p.Potassium > *t.PotassiumCeiling {
			set = set.With(domain.HYPERKALEMIA)
		}
	}
	if floor := t.EGFRFloor(in.Initiation); floor != nil {
		if p.EGFR == nil {
			unavailable = true
		} else if *p.EGFR < *floor {
			set = set.With(domain.RENAL_IMPAIRMENT)
		}
	}

	history := p.HistoryOrEmpty()
	if history.RecentAKI && t.HasLabLimit() {
		set = set.With(domain.RECENT_AKI)
	}

	// Data quality
	fresh := CheckFreshness(p.LabsDate, p.VitalsDate, in.AsOf, in.Staleness)
	if t.HasLabLimit() {
		for _, c := range fresh.LabCodes() {
			set = set.With(c)
		}
	}
	if t.HasVitalsLimit() {
		for _, c := range fresh.VitalsCodes() {
			set = set.With(c)
		}
	}
	if unavailable {
		set = set.With(domain.LABS_UNAVAILABLE)
	}

	// Documented flags
	if p.HasAllergy(in.Class) {
		set = set.With(domain.ALLERGY)
	}
	if p.HasAdverseReaction(in.Class) {
		set = set.With(domain.ADVERSE_REACTION)
	}
	for _, c := range in.Extra {
		if c.Class == in.Class && c.Present != nil && c.Present(history) {
			set = set.With(c.Code)
		}
	}
	if p.Refused(in.Class) {
		set = set.With(domain.PATIENT_REFUSAL)
	}
	if p.HasCostBarrier(in.Class) {
		set = set.With(domain.COST_BARRIER)
	}

	// Access and care transitions
	if med, ok := p.MedicationFor(in.Class); ok {
		if code, ok := med.AccessBarrier.Blocker(); ok {
			set = set.With(code)
		}
		if med.HeldAtDischarge {
			set = set.With(domain.NOT_RESUMED_AFTER_DISCHARGE)
		}
	}

	if in.Class == perioperativeClass && p.SurgeryDate != nil &&
		absInt(daysBetween(*p.SurgeryDate, in.AsOf)) <= in.Staleness.PerioperativeDays {
		set = set.With(domain.PERIOPERATIVE_HOLD)
	}

	return domain.Evaluated(set)
}

// absoluteCodes returns the codes that make class CONTRAINDICATED.
func absoluteCodes(class domain.TherapyClass, extra []Contraindication) []domain.BlockerCode {
	codes := []domain.BlockerCode{domain.ALLERGY}
	for _, c := range extra {
		if c.Class == class && c.Absolute {
			codes = append(codes, c.Code)
		}
	}
	return codes
}
