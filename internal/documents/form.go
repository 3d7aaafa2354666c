package documents

import (
	"fmt"
	"time"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
)

// FormData is the prior-authorization data structure every document is rendered from.
type FormData struct {
	PatientID      string              `json:"patient_id"`
	TherapyClass   domain.TherapyClass `json:"therapy_class"`
	ClassLabel     string              `json:"class_label"`
	MedicationName string              `json:"medication_name,omitempty"`
	Blocker        domain.BlockerCode  `json:"blocker"`
	SBP            float64             `json:"sbp"`
	HeartRate      float64             `json:"heart_rate"`
	EF             *float64            `json:"ef,omitempty"`
	EGFR           *float64            `json:"egfr,omitempty"`
	Potassium      *float64            `json:"potassium,omitempty"`
	A1C            *float64            `json:"a1c,omitempty"`
	LabsDate       *time.Time          `json:"labs_date,omitempty"`
	Comorbidities  []string            `json:"comorbidities,omitempty"`
	PriorTolerated []string            `json:"prior_tolerated,omitempty"`
	Alternatives   []string            `json:"alternatives,omitempty"`
	Citations      []string            `json:"citations,omitempty"`
	Justification  string              `json:"-"`
	PreparedAt     time.Time           `json:"prepared_at"`
}

// BuildFormData collects the facts a payer asks for about the record's therapy class.
func BuildFormData(rec domain.ResolutionRecord, p *domain.PatientSnapshot, rs *ruleset.Ruleset, at time.Time) FormData {
	if p == nil {
		p = &domain.PatientSnapshot{PatientID: rec.PatientID}
	}
	data := FormData{
		PatientID:    p.PatientID,
		TherapyClass: rec.TherapyClass,
		ClassLabel:   rec.TherapyClass.Label(),
		Blocker:      rec.Blocker,
		SBP:          p.SBP,
		HeartRate:    p.HeartRate,
		EF:           p.EF,
		EGFR:         p.EGFR,
		Potassium:    p.Potassium,
		A1C:          p.A1C,
		LabsDate:     p.LabsDate,
		PreparedAt:   at,
	}
	if data.PatientID == "" {
		data.PatientID = rec.PatientID
	}
	if m, ok := p.MedicationFor(rec.TherapyClass); ok {
		data.MedicationName = m.Name
	}

	h := p.HistoryOrEmpty()
	if h.Comorbidities.HeartFailure {
		data.Comorbidities = append(data.Comorbidities, "heart failure")
	}
	if h.Comorbidities.CKD {
		data.Comorbidities = append(data.Comorbidities, "chronic kidney disease")
	}
	if h.Comorbidities.ASCVD {
		data.Comorbidities = append(data.Comorbidities, "atherosclerotic cardiovascular disease")
	}
	for _, c := range h.PriorTolerated {
		data.PriorTolerated = append(data.PriorTolerated, c.Label())
	}

	if rs != nil {
		data.Alternatives = rs.Alternatives(rec.TherapyClass)
		for _, id := range domain.AllDomains {
			if r, ok := rs.Rule(id, rec.TherapyClass); ok {
				data.Citations = append(data.Citations, fmt.Sprintf("%s: %s", r.GuidelineID, r.Evidence))
			}
		}
	}
	return data
}
