package engine

import (
	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
)

// Diabetes categories by hemoglobin A1c.
const (
	CategoryAtTarget     = "AT_TARGET"
	CategoryAboveTarget  = "ABOVE_TARGET"
	CategoryUncontrolled = "UNCONTROLLED"
	CategorySevere       = "SEVERE"
	CategoryUnknownA1c   = "UNKNOWN"
)

// Threshold and condition names read from diabetes rule entries.
const (
	keyA1cTarget       = "a1c_target"
	keyA1cUncontrolled = "a1c_uncontrolled"
	keyA1cSevere       = "a1c_severe"
	keyEGFRCKD         = "egfr_ckd"
	keyUACRCKD         = "uacr_ckd"
	keyBMIObesity      = "bmi_obesity"

	condCardiorenal = "cardiorenal_indication"
	condASCVD       = "ascvd_indication"
)

const (
	defaultA1cTarget       = 7.0
	defaultA1cUncontrolled = 9.0
	defaultA1cSevere       = 10.0
	defaultEGFRCKD         = 60.0
	defaultUACRCKD         = 30.0
	defaultBMIObesity      = 30.0

	questionA1cUnknown = "When was the last hemoglobin A1c drawn, and what was the result?"
	missingA1c         = "Hemoglobin A1c"
)

var dmLabels = map[string]string{
	CategoryAtTarget:     "Type 2 diabetes at glycemic target",
	CategoryAboveTarget:  "Type 2 diabetes above glycemic target",
	CategoryUncontrolled: "Uncontrolled type 2 diabetes",
	CategorySevere:       "Severe hyperglycemia",
	CategoryUnknownA1c:   "Type 2 diabetes, A1c not documented",
}

// dmLimits are the diabetes thresholds resolved from the ruleset.
type dmLimits struct {
	target, uncontrolled, severe float64
	egfrCKD, uacrCKD, bmiObesity float64
}

func diabetesLimits(rs *ruleset.Ruleset) dmLimits {
	l := dmLimits{
		target:       defaultA1cTarget,
		uncontrolled: defaultA1cUncontrolled,
		severe:       defaultA1cSevere,
		egfrCKD:      defaultEGFRCKD,
		uacrCKD:      defaultUACRCKD,
		bmiObesity:   defaultBMIObesity,
	}
	for _, r := range rs.Rules(domain.DIABETES) {
		l.target = r.Threshold(keyA1cTarget, l.target)
		l.uncontrolled = r.Threshold(keyA1cUncontrolled, l.uncontrolled)
		l.severe = r.Threshold(keyA1cSevere, l.severe)
		l.egfrCKD = r.Threshold(keyEGFRCKD, l.egfrCKD)
		l.uacrCKD = r.Threshold(keyUACRCKD, l.uacrCKD)
		l.bmiObesity = r.Threshold(keyBMIObesity, l.bmiObesity)
	}
	return l
}

// hasCKD reports documented or inferred chronic kidney disease.
func (l dmLimits) hasCKD(p *domain.PatientSnapshot) bool {
	if p.HistoryOrEmpty().Comorbidities.CKD {
		return true
	}
	return (p.EGFR != nil && *p.EGFR < l.egfrCKD) || (p.UACR != nil && *p.UACR >= l.uacrCKD)
}

func (l dmLimits) aboveTarget(p *domain.PatientSnapshot) bool {
	return p.A1C != nil && *p.A1C >= l.target
}

func (l dmLimits) isSevere(p *domain.PatientSnapshot) bool {
	return p.A1C != nil && *p.A1C >= l.severe
}

// Diabetes returns the descriptor for the type 2 diabetes audit, scored compositely.
func Diabetes() *Descriptor {
	return &Descriptor{
		ID:         domain.DIABETES,
		Categorize: categorizeDM,
		Applicable: applicableDM,
		Contraindications: []Contraindication{
			{Class: domain.SGLT2I, Code: domain.DKA_HISTORY, Present: func(h domain.PatientHistory) bool { return h.DKAHistory }},
			{Class: domain.GLP1_RA, Code: domain.PANCREATITIS_HISTORY, Present: func(h domain.PatientHistory) bool { return h.PancreatitisHistory }},
			{Class: domain.GLP1_RA, Code: domain.THYROID_C_CELL_HISTORY, Absolute: true, Present: func(h domain.PatientHistory) bool { return h.ThyroidCCellHistory }},
			{Class: domain.INSULIN, Code: domain.HYPOGLYCEMIA_HISTORY, Present: func(h domain.PatientHistory) bool { return h.HypoglycemiaHistory }},
		},
		Score: scoreDM,
		Questions: func(ctx Context) []string {
			if ctx.Snapshot.A1C == nil {
				return []string{questionA1cUnknown}
			}
			return nil
		},
		Missing: func(ctx Context) []string {
			if ctx.Snapshot.A1C == nil {
				return []string{missingA1c}
			}
			return nil
		},
	}
}

func categorizeDM(rs *ruleset.Ruleset, p *domain.PatientSnapshot) (string, string) {
	category := CategoryUnknownA1c
	if p.A1C != nil {
		l := diabetesLimits(rs)
		switch a1c := *p.A1C; {
		case a1c < l.target:
			category = CategoryAtTarget
		case a1c < l.uncontrolled:
			category = CategoryAboveTarget
		case a1c < l.severe:
			category = CategoryUncontrolled
		default:
			category = CategorySevere
		}
	}
	return category, dmLabels[category]
}

// applicableDM gates pillars by glycemic control and comorbidity. A class the patient already
// takes is always evaluated so its dose is audited.
func applicableDM(ctx Context, class domain.TherapyClass) bool {
	p := ctx.Snapshot
	if _, ok := p.ActiveMedication(class); ok {
		return true
	}
	l := diabetesLimits(ctx.Rules)
	co := p.HistoryOrEmpty().Comorbidities
	rule := ctx.Rule(class)

	switch class {
	case domain.METFORMIN:
		return true
	case domain.SGLT2I:
		return l.aboveTarget(p) ||
			(rule.Condition(condCardiorenal) && (co.HeartFailure || co.ASCVD || l.hasCKD(p)))
	case domain.GLP1_RA:
		return l.aboveTarget(p) ||
			(rule.Condition(condASCVD) && co.ASCVD) ||
			(p.BMI != nil && *p.BMI >= l.bmiObesity)
	case domain.INSULIN:
		return l.isSevere(p)
	default:
		return ctx.Rules.Applies(domain.DIABETES, class, ctx.Category)
	}
}

// scoreDM builds the composite criteria: metformin dosing, glycemic target, cardiorenal
// protection and severe-hyperglycemia insulin coverage.
func scoreDM(ctx Context, pillars []domain.PillarResult) domain.GDMTScore {
	p := ctx.Snapshot
	w := ctx.Rules.Composite()
	l := diabetesLimits(ctx.Rules)
	co := p.HistoryOrEmpty().Comorbidities

	tier := func(class domain.TherapyClass) domain.DoseTier {
		if m, ok := p.ActiveMedication(class); ok {
			return m.DoseTier
		}
		return domain.NOT_PRESCRIBED
	}

	criteria := []Criterion{
		{
			Name:       "metformin_dosing",
			Max:        w.MetforminDosing,
			Points:     scaledPoints(w.MetforminDosing, tier(domain.METFORMIN)),
			Applicable: true,
			Pillars:    []domain.TherapyClass{domain.METFORMIN},
		},
		{
			Name:       "glycemic_target",
			Max:        w.GlycemicTarget,
			Points:     pointsIf(p.A1C != nil && *p.A1C < l.target, w.GlycemicTarget),
			Applicable: p.A1C != nil,
			Incomplete: p.A1C == nil,
		},
	}

	renal := co.HeartFailure || l.hasCKD(p)
	if renal || co.ASCVD {
		qualifying := []domain.TherapyClass{domain.SGLT2I}
		if !renal {
			qualifying = append(qualifying, domain.GLP1_RA)
		}
		met := false
		for _, c := range qualifying {
			if tier(c).Active() {
				met = true
			}
		}
		criteria = append(criteria, Criterion{
			Name:       "cardiorenal_protection",
			Max:        w.Cardiorenal,
			Points:     pointsIf(met, w.Cardiorenal),
			Applicable: true,
			Pillars:    qualifying,
		})
	}

	criteria = append(criteria, Criterion{
		Name:       "insulin_coverage",
		Max:        w.InsulinCoverage,
		Points:     pointsIf(tier(domain.INSULIN).Active(), w.InsulinCoverage),
		Applicable: l.isSevere(p),
		Pillars:    []domain.TherapyClass{domain.INSULIN},
	})

	return CompositeScore(criteria, pillars)
}

func pointsIf(ok bool, points int) int {
	if ok {
		return points
	}
	return 0
}
