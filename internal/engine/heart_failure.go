package engine

import (
	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
)

// Heart failure categories by ejection fraction.
const (
	CategoryHFrEF     = "HFrEF"
	CategoryHFmrEF    = "HFmrEF"
	CategoryHFimpEF   = "HFimpEF"
	CategoryHFpEF     = "HFpEF"
	CategoryUnknownEF = "UNKNOWN_EF"
)

const (
	reducedEFCeiling   = 40.0
	preservedEFFloor   = 50.0
	questionEFUnknown  = "What is the most recent left ventricular ejection fraction?"
	missingEFStatement = "Left ventricular ejection fraction"
)

var hfLabels = map[string]string{
	CategoryHFrEF:     "Heart failure with reduced ejection fraction",
	CategoryHFmrEF:    "Heart failure with mildly reduced ejection fraction",
	CategoryHFimpEF:   "Heart failure with improved ejection fraction",
	CategoryHFpEF:     "Heart failure with preserved ejection fraction",
	CategoryUnknownEF: "Heart failure, ejection fraction not documented",
}

// HeartFailure returns the descriptor for the four-pillar heart failure audit.
func HeartFailure() *Descriptor {
	return &Descriptor{
		ID:         domain.HEART_FAILURE,
		Categorize: categorizeHF,
		Applicable: func(ctx Context, class domain.TherapyClass) bool {
			return ctx.Rules.Applies(domain.HEART_FAILURE, class, ctx.Category)
		},
		Contraindications: []Contraindication{
			{Class: domain.RAAS_INHIBITOR, Code: domain.ANGIOEDEMA_HISTORY, Absolute: true, Present: hasAngioedema},
			{Class: domain.RAAS_INHIBITOR, Code: domain.PREGNANCY, Absolute: true, Present: isPregnant},
			{Class: domain.MRA, Code: domain.PREGNANCY, Absolute: true, Present: isPregnant},
		},
		Questions: func(ctx Context) []string {
			if ctx.Snapshot.EF == nil {
				return []string{questionEFUnknown}
			}
			return nil
		},
		Missing: func(ctx Context) []string {
			if ctx.Snapshot.EF == nil {
				return []string{missingEFStatement}
			}
			return nil
		},
	}
}

func categorizeHF(_ *ruleset.Ruleset, p *domain.PatientSnapshot) (string, string) {
	category := CategoryUnknownEF
	if p.EF != nil {
		ef := *p.EF
		prior := p.HistoryOrEmpty().PriorEF
		switch {
		case ef <= reducedEFCeiling:
			category = CategoryHFrEF
		case prior != nil && *prior <= reducedEFCeiling:
			category = CategoryHFimpEF
		case ef < preservedEFFloor:
			category = CategoryHFmrEF
		default:
			category = CategoryHFpEF
		}
	}
	return category, hfLabels[category]
}

func hasAngioedema(h domain.PatientHistory) bool { return h.AngioedemaHistory }

func isPregnant(h domain.PatientHistory) bool { return h.Pregnant }
