package domain

import (
	"time"
)

// Medication is one medication record for a therapy class.
type Medication struct {
	Class           TherapyClass  `json:"therapy_class" yaml:"therapy_class"`
	Name            string        `json:"name,omitempty" yaml:"name,omitempty"`
	DoseTier        DoseTier      `json:"dose_tier" yaml:"dose_tier"`
	AdverseReaction bool          `json:"adverse_reaction,omitempty" yaml:"adverse_reaction,omitempty"`
	Allergy         bool          `json:"allergy,omitempty" yaml:"allergy,omitempty"`
	PatientRefused  bool          `json:"patient_refused,omitempty" yaml:"patient_refused,omitempty"`
	CostBarrier     bool          `json:"cost_barrier,omitempty" yaml:"cost_barrier,omitempty"`
	AccessBarrier   AccessBarrier `json:"access_barrier,omitempty" yaml:"access_barrier,omitempty"`
	HeldAtDischarge bool          `json:"held_at_discharge,omitempty" yaml:"held_at_discharge,omitempty"`
}

// Active reports whether the record is a current prescription.
func (m Medication) Active() bool {
	return m.DoseTier.Active()
}

// Comorbidities captures conditions that change pillar applicability.
type Comorbidities struct {
	HeartFailure bool `json:"heart_failure,omitempty" yaml:"heart_failure,omitempty"`
	CKD          bool `json:"ckd,omitempty" yaml:"ckd,omitempty"`
	ASCVD        bool `json:"ascvd,omitempty" yaml:"ascvd,omitempty"`
}

// PatientHistory is optional structured history.
type PatientHistory struct {
	Allergies           []TherapyClass          `json:"allergies,omitempty" yaml:"allergies,omitempty"`
	AdverseReactions    map[TherapyClass]string `json:"adverse_reactions,omitempty" yaml:"adverse_reactions,omitempty"`
	RecentAKI           bool                    `json:"recent_aki,omitempty" yaml:"recent_aki,omitempty"`
	AngioedemaHistory   bool                    `json:"angioedema_history,omitempty" yaml:"angioedema_history,omitempty"`
	Pregnant            bool                    `json:"pregnant,omitempty" yaml:"pregnant,omitempty"`
	DKAHistory          bool                    `json:"dka_history,omitempty" yaml:"dka_history,omitempty"`
	ThyroidCCellHistory bool                    `json:"thyroid_c_cell_history,omitempty" yaml:"thyroid_c_cell_history,omitempty"`
	PancreatitisHistory bool                    `json:"pancreatitis_history,omitempty" yaml:"pancreatitis_history,omitempty"`
	HypoglycemiaHistory bool                    `json:"hypoglycemia_history,omitempty" yaml:"hypoglycemia_history,omitempty"`
	PriorTolerated      []TherapyClass          `json:"prior_tolerated,omitempty" yaml:"prior_tolerated,omitempty"`
	PriorEF             *float64                `json:"prior_ef,omitempty" yaml:"prior_ef,omitempty"`
	Comorbidities       Comorbidities           `json:"comorbidities,omitempty" yaml:"comorbidities,omitempty"`
}

// PatientSnapshot is the immutable audit input. Pointer fields are "not yet measured" when
// nil and must never be defaulted to a clinically meaningful value.
type PatientSnapshot struct {
	PatientID   string          `json:"patient_id" yaml:"patient_id"`
	SBP         float64         `json:"sbp" yaml:"sbp"`
	HeartRate   float64         `json:"heart_rate" yaml:"heart_rate"`
	DBP         *float64        `json:"dbp,omitempty" yaml:"dbp,omitempty"`
	Potassium   *float64        `json:"potassium,omitempty" yaml:"potassium,omitempty"`
	EGFR        *float64        `json:"egfr,omitempty" yaml:"egfr,omitempty"`
	EF          *float64        `json:"ef,omitempty" yaml:"ef,omitempty"`
	A1C         *float64        `json:"a1c,omitempty" yaml:"a1c,omitempty"`
	BMI         *float64        `json:"bmi,omitempty" yaml:"bmi,omitempty"`
	UACR        *float64        `json:"uacr,omitempty" yaml:"uacr,omitempty"`
	LabsDate    *time.Time      `json:"labs_date,omitempty" yaml:"labs_date,omitempty"`
	VitalsDate  *time.Time      `json:"vitals_date,omitempty" yaml:"vitals_date,omitempty"`
	SurgeryDate *time.Time      `json:"surgery_date,omitempty" yaml:"surgery_date,omitempty"`
	Medications []Medication    `json:"medications,omitempty" yaml:"medications,omitempty"`
	History     *PatientHistory `json:"history,omitempty" yaml:"history,omitempty"`
}

// Validate checks the mandatory vitals and the enumerations carried by the snapshot.
func (p *PatientSnapshot) Validate() error {
	if p.SBP <= 0 {
		return NewValidationError("sbp", "systolic blood pressure is required", p.SBP)
	}
	if p.HeartRate <= 0 {
		return NewValidationError("heart_rate", "heart rate is required", p.HeartRate)
	}
	for i, m := range p.Medications {
		if !m.Class.IsValid() {
			return NewValidationError("medications", "unknown therapy class", i)
		}
		if m.DoseTier != "" && !m.DoseTier.IsValid() {
			return NewValidationError("medications", "unknown dose tier", m.DoseTier)
		}
	}
	return nil
}

// MedicationFor returns the authoritative medication for class. The first active record wins;
// when none is active the first record of the class is returned so its documented flags still
// count. The second return is false when the class has no record at all.
func (p *PatientSnapshot) MedicationFor(class TherapyClass) (Medication, bool) {
	var fallback *Medication
	for i := range p.Medications {
		m := p.Medications[i]
		if m.Class != class {
			continue
		}
		if m.Active() {
			return m, true
		}
		if fallback == nil {
			fallback = &p.Medications[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Medication{}, false
}

// ActiveMedication returns the active medication for class, if any.
func (p *PatientSnapshot) ActiveMedication(class TherapyClass) (Medication, bool) {
	m, ok := p.MedicationFor(class)
	if !ok || !m.Active() {
		return Medication{}, false
	}
	return m, true
}

// recordsFor returns every record of the class.
func (p *PatientSnapshot) recordsFor(class TherapyClass) []Medication {
	var out []Medication
	for _, m := range p.Medications {
		if m.Class == class {
			out = append(out, m)
		}
	}
	return out
}

// HasAllergy reports a documented allergy to class on any medication record or in history.
func (p *PatientSnapshot) HasAllergy(class TherapyClass) bool {
	for _, m := range p.recordsFor(class) {
		if m.Allergy {
			return true
		}
	}
	if p.History != nil {
		for _, a := range p.History.Allergies {
			if a == class {
				return true
			}
		}
	}
	return false
}

// HasAdverseReaction reports a documented adverse reaction to class.
func (p *PatientSnapshot) HasAdverseReaction(class TherapyClass) bool {
	for _, m := range p.recordsFor(class) {
		if m.AdverseReaction {
			return true
		}
	}
	if p.History != nil {
		if _, ok := p.History.AdverseReactions[class]; ok {
			return true
		}
	}
	return false
}

// Refused reports a documented patient refusal of class.
func (p *PatientSnapshot) Refused(class TherapyClass) bool {
	for _, m := range p.recordsFor(class) {
		if m.PatientRefused {
			return true
		}
	}
	return false
}

// HasCostBarrier reports a documented patient cost barrier for class.
func (p *PatientSnapshot) HasCostBarrier(class TherapyClass) bool {
	for _, m := range p.recordsFor(class) {
		if m.CostBarrier {
			return true
		}
	}
	return false
}

// ToleratedPreviously reports a documented prior tolerated trial of class.
func (p *PatientSnapshot) ToleratedPreviously(class TherapyClass) bool {
	if p.History == nil {
		return false
	}
	for _, c := range p.History.PriorTolerated {
		if c == class {
			return true
		}
	}
	return false
}

// HistoryOrEmpty returns the history, or an empty history when none was supplied.
func (p *PatientSnapshot) HistoryOrEmpty() PatientHistory {
	if p.History == nil {
		return PatientHistory{}
	}
	return *p.History
}
