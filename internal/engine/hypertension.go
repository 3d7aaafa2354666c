package engine

import (
	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
)

// Hypertension categories per the ACC/AHA blood pressure classification. UNCLASSIFIED is used
// when systolic pressure alone is below stage 1 and diastolic pressure was not measured.
const (
	CategoryNormal       = "NORMAL"
	CategoryElevated     = "ELEVATED"
	CategoryStage1       = "STAGE_1"
	CategoryStage2       = "STAGE_2"
	CategoryHTNCrisis    = "HYPERTENSIVE_CRISIS"
	CategoryUnclassified = "UNCLASSIFIED"
	condResistantOnly    = "resistant_only"
	condSkipControlled   = "skip_when_controlled"
	questionDBPUnknown   = "What is the patient's diastolic blood pressure?"
	missingDBP           = "Diastolic blood pressure"
)

var htnLabels = map[string]string{
	CategoryNormal:       "Normal blood pressure",
	CategoryElevated:     "Elevated blood pressure",
	CategoryStage1:       "Stage 1 hypertension",
	CategoryStage2:       "Stage 2 hypertension",
	CategoryHTNCrisis:    "Hypertensive crisis",
	CategoryUnclassified: "Blood pressure category undetermined (diastolic pressure not measured)",
}

// firstLineAntihypertensives must all be prescribed before hypertension counts as resistant.
var firstLineAntihypertensives = []domain.TherapyClass{domain.ACEI_ARB, domain.CCB, domain.THIAZIDE}

// Hypertension returns the descriptor for the hypertension audit.
func Hypertension() *Descriptor {
	return &Descriptor{
		ID:         domain.HYPERTENSION,
		Categorize: categorizeHTN,
		Applicable: applicableHTN,
		Contraindications: []Contraindication{
			{Class: domain.ACEI_ARB, Code: domain.ANGIOEDEMA_HISTORY, Absolute: true, Present: hasAngioedema},
			{Class: domain.ACEI_ARB, Code: domain.PREGNANCY, Absolute: true, Present: isPregnant},
			{Class: domain.MRA, Code: domain.PREGNANCY, Absolute: true, Present: isPregnant},
		},
		Score: scoreHTN,
		Questions: func(ctx Context) []string {
			if ctx.Snapshot.DBP == nil {
				return []string{questionDBPUnknown}
			}
			return nil
		},
		Missing: func(ctx Context) []string {
			if ctx.Category == CategoryUnclassified {
				return []string{missingDBP}
			}
			return nil
		},
	}
}

// scoreHTN is the linear score, incomplete while the category is undetermined.
func scoreHTN(ctx Context, pillars []domain.PillarResult) domain.GDMTScore {
	s := LinearScore(pillars)
	if ctx.Category == CategoryUnclassified {
		s.IsIncomplete = true
	}
	return s
}

func categorizeHTN(_ *ruleset.Ruleset, p *domain.PatientSnapshot) (string, string) {
	sbp := p.SBP
	if p.DBP == nil && sbp < 130 {
		return CategoryUnclassified, htnLabels[CategoryUnclassified]
	}
	dbp := -1.0
	if p.DBP != nil {
		dbp = *p.DBP
	}

	var category string
	switch {
	case sbp > 180 || dbp > 120:
		category = CategoryHTNCrisis
	case sbp >= 140 || dbp >= 90:
		category = CategoryStage2
	case sbp >= 130 || dbp >= 80:
		category = CategoryStage1
	case sbp >= 120:
		category = CategoryElevated
	default:
		category = CategoryNormal
	}
	return category, htnLabels[category]
}

// Controlled reports whether the hypertension category needs no intensification. An
// unclassified category is never controlled.
func Controlled(category string) bool {
	return category == CategoryNormal || category == CategoryElevated
}

func applicableHTN(ctx Context, class domain.TherapyClass) bool {
	p := ctx.Snapshot
	rule := ctx.Rule(class)
	_, active := p.ActiveMedication(class)

	if Controlled(ctx.Category) && rule.Condition(condSkipControlled) && !active {
		return false
	}
	if rule.Condition(condResistantOnly) && !active {
		if Controlled(ctx.Category) {
			return false
		}
		for _, c := range firstLineAntihypertensives {
			if _, ok := p.ActiveMedication(c); !ok {
				return false
			}
		}
	}
	return true
}
