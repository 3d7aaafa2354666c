// Package domain contains the core entities of the guideline-directed medical therapy (GDMT)
// audit: therapy classes ("pillars"), dose tiers, blocker codes, patient snapshots, audit
// results and the resolution workflow records that track remediation of access barriers.
//
// Everything in this package is plain data. Rule evaluation lives in the engine and
// resolution packages.
package domain

import (
	"strings"
)

// TherapyClass identifies one guideline-recommended medication category (a "pillar").
type TherapyClass string

const (
	BETA_BLOCKER   TherapyClass = "BETA_BLOCKER"
	RAAS_INHIBITOR TherapyClass = "RAAS_INHIBITOR"
	MRA            TherapyClass = "MRA"
	SGLT2I         TherapyClass = "SGLT2I"
	METFORMIN      TherapyClass = "METFORMIN"
	GLP1_RA        TherapyClass = "GLP1_RA"
	INSULIN        TherapyClass = "INSULIN"
	ACEI_ARB       TherapyClass = "ACEI_ARB"
	CCB            TherapyClass = "CCB"
	THIAZIDE       TherapyClass = "THIAZIDE"
)

// AllTherapyClasses lists every therapy class known to the engine.
var AllTherapyClasses = []TherapyClass{
	BETA_BLOCKER, RAAS_INHIBITOR, MRA, SGLT2I,
	METFORMIN, GLP1_RA, INSULIN,
	ACEI_ARB, CCB, THIAZIDE,
}

// IsValid reports whether the therapy class is known.
func (t TherapyClass) IsValid() bool {
	for _, c := range AllTherapyClasses {
		if c == t {
			return true
		}
	}
	return false
}

// String returns the string representation of the therapy class.
func (t TherapyClass) String() string {
	return string(t)
}

// Label returns a clinician-facing name for the therapy class.
func (t TherapyClass) Label() string {
	switch t {
	case BETA_BLOCKER:
		return "evidence-based beta blocker"
	case RAAS_INHIBITOR:
		return "ARNI/ACE inhibitor/ARB"
	case MRA:
		return "mineralocorticoid receptor antagonist"
	case SGLT2I:
		return "SGLT2 inhibitor"
	case METFORMIN:
		return "metformin"
	case GLP1_RA:
		return "GLP-1 receptor agonist"
	case INSULIN:
		return "basal insulin"
	case ACEI_ARB:
		return "ACE inhibitor or ARB"
	case CCB:
		return "calcium channel blocker"
	case THIAZIDE:
		return "thiazide-type diuretic"
	default:
		return strings.ToLower(strings.ReplaceAll(string(t), "_", " "))
	}
}

// DoseTier is the ordered rung a prescription occupies within a pillar.
type DoseTier string

const (
	NOT_PRESCRIBED DoseTier = "NOT_PRESCRIBED"
	LOW_DOSE       DoseTier = "LOW"
	MEDIUM_DOSE    DoseTier = "MEDIUM"
	HIGH_DOSE      DoseTier = "HIGH"
)

// MaxTierPoints is the per-pillar ceiling used by the linear scorer.
const MaxTierPoints = 25

// Points returns the fixed score contribution of the tier.
func (d DoseTier) Points() int {
	switch d {
	case LOW_DOSE:
		return 8
	case MEDIUM_DOSE:
		return 16
	case HIGH_DOSE:
		return MaxTierPoints
	default:
		return 0
	}
}

// Rank orders tiers from NOT_PRESCRIBED (0) to HIGH (3).
func (d DoseTier) Rank() int {
	switch d {
	case LOW_DOSE:
		return 1
	case MEDIUM_DOSE:
		return 2
	case HIGH_DOSE:
		return 3
	default:
		return 0
	}
}

// IsValid reports whether the tier is one of the four known tiers.
func (d DoseTier) IsValid() bool {
	switch d {
	case NOT_PRESCRIBED, LOW_DOSE, MEDIUM_DOSE, HIGH_DOSE:
		return true
	default:
		return false
	}
}

// Active reports whether the tier represents a current prescription.
// An empty tier is treated as not prescribed.
func (d DoseTier) Active() bool {
	return d.Rank() > 0
}

// PillarStatus is the terminal status assigned to a pillar by the evaluator.
type PillarStatus string

const (
	ON_TARGET       PillarStatus = "ON_TARGET"
	UNDERDOSED      PillarStatus = "UNDERDOSED"
	MISSING         PillarStatus = "MISSING"
	CONTRAINDICATED PillarStatus = "CONTRAINDICATED"
	UNKNOWN         PillarStatus = "UNKNOWN"
)

// String returns the string representation of the status.
func (s PillarStatus) String() string {
	return string(s)
}

// DomainID names a disease-management ruleset.
type DomainID string

const (
	HEART_FAILURE DomainID = "heart_failure"
	DIABETES      DomainID = "diabetes"
	HYPERTENSION  DomainID = "hypertension"
)

// AllDomains lists the domains in a stable order.
var AllDomains = []DomainID{HEART_FAILURE, DIABETES, HYPERTENSION}

// ParseDomainID converts user input such as "heart-failure" or "HF" into a DomainID.
func ParseDomainID(s string) (DomainID, error) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "heart_failure", "hf":
		return HEART_FAILURE, nil
	case "diabetes", "dm", "t2dm":
		return DIABETES, nil
	case "hypertension", "htn":
		return HYPERTENSION, nil
	default:
		return "", ErrInvalidDomain
	}
}
