package documents

import (
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
)

var preparedAt = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

func fptr(v float64) *float64 { return &v }

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry()
	require.NoError(t, err)
	return r
}

func raasRecord() domain.ResolutionRecord {
	return domain.ResolutionRecord{
		ID:           "rec-1",
		Blocker:      domain.PRIOR_AUTH_DENIED,
		TherapyClass: domain.RAAS_INHIBITOR,
		PatientID:    "hf-001",
	}
}

func snapshot() *domain.PatientSnapshot {
	labs := preparedAt.AddDate(0, 0, -3)
	return &domain.PatientSnapshot{
		PatientID: "hf-001",
		SBP:       118,
		HeartRate: 72,
		Potassium: fptr(4.2),
		EGFR:      fptr(65),
		EF:        fptr(30),
		LabsDate:  &labs,
		Medications: []domain.Medication{
			{Class: domain.RAAS_INHIBITOR, Name: "sacubitril/valsartan", AccessBarrier: domain.AccessPADenied},
		},
		History: &domain.PatientHistory{
			PriorTolerated: []domain.TherapyClass{domain.RAAS_INHIBITOR},
			Comorbidities:  domain.Comorbidities{CKD: true},
		},
	}
}

func TestRegistryCoversDefaultRuleset(t *testing.T) {
	r := newRegistry(t)
	rs := ruleset.MustDefault()

	require.NoError(t, r.Validate(rs))
	assert.Equal(t, rs.Classes(), r.Classes())
}

func TestValidateReportsMissingClass(t *testing.T) {
	fsys := fstest.MapFS{
		"t/appeal_letter.tmpl": {Data: []byte(`{{define "appeal_letter"}}{{.Justification}}{{end}}`)},
		"t/classes.tmpl":       {Data: []byte(`{{define "class.MRA"}}MRA{{end}}`)},
	}
	r, err := parseRegistry(fsys, "t/*.tmpl")
	require.NoError(t, err)

	assert.True(t, r.HasTemplate(domain.MRA))
	assert.False(t, r.HasTemplate(domain.SGLT2I))
	assert.Equal(t, []domain.TherapyClass{domain.MRA}, r.Classes())

	err = r.Validate(ruleset.MustDefault())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTemplateNotFound))
	assert.Contains(t, err.Error(), "SGLT2I")
	assert.NotContains(t, err.Error(), "MRA,")
}

func TestMustTemplatePanicsOnUnknownClass(t *testing.T) {
	r := newRegistry(t)

	assert.Panics(t, func() {
		r.MustTemplate(domain.DocumentAppealLetter, domain.TherapyClass("STATIN"))
	})
	assert.NotPanics(t, func() {
		r.MustTemplate(domain.DocumentAppealLetter, domain.SGLT2I)
	})

	_, err := r.Lookup(domain.DocumentKind("discharge_summary"), domain.SGLT2I)
	assert.True(t, errors.Is(err, domain.ErrTemplateNotFound))
	_, err = r.Lookup(domain.DocumentNone, domain.SGLT2I)
	assert.True(t, errors.Is(err, domain.ErrTemplateNotFound))
}

func TestBuildFormData(t *testing.T) {
	data := BuildFormData(raasRecord(), snapshot(), ruleset.MustDefault(), preparedAt)

	assert.Equal(t, "hf-001", data.PatientID)
	assert.Equal(t, "sacubitril/valsartan", data.MedicationName)
	assert.Equal(t, []string{"chronic kidney disease"}, data.Comorbidities)
	assert.Equal(t, []string{domain.RAAS_INHIBITOR.Label()}, data.PriorTolerated)
	assert.Equal(t, []string{"lisinopril", "losartan"}, data.Alternatives)
	require.Len(t, data.Citations, 1)
	assert.Contains(t, data.Citations[0], "AHA/ACC/HFSA 2022")
}

func TestBuildFormDataWithoutSnapshot(t *testing.T) {
	data := BuildFormData(raasRecord(), nil, nil, preparedAt)
	assert.Equal(t, "hf-001", data.PatientID)
	assert.Empty(t, data.Citations)
}

func TestGenerateDocuments(t *testing.T) {
	r := newRegistry(t)
	data := BuildFormData(raasRecord(), snapshot(), ruleset.MustDefault(), preparedAt)

	tests := []struct {
		kind     domain.DocumentKind
		title    string
		contains []string
	}{
		{
			kind:  domain.DocumentPAForm,
			title: "Prior authorization request: " + domain.RAAS_INHIBITOR.Label(),
			contains: []string{
				"Patient ID: hf-001",
				"(sacubitril/valsartan)",
				"Ejection fraction: 30%",
				"Potassium: 4.2 mmol/L",
				"Hemoglobin A1c: not documented",
				"Labs drawn: 2026-02-26",
				"Comorbidities: chronic kidney disease",
			},
		},
		{
			kind:  domain.DocumentAppealLetter,
			title: "Appeal letter: " + domain.RAAS_INHIBITOR.Label(),
			contains: []string{
				"Re: Appeal of prior authorization denial",
				"Renin-angiotensin inhibition",
				"Covered alternatives considered: lisinopril, losartan.",
			},
		},
		{
			kind:  domain.DocumentExceptionRequest,
			title: "Coverage exception request: " + domain.RAAS_INHIBITOR.Label(),
			contains: []string{
				"COVERAGE EXCEPTION REQUEST",
				"Barrier: PRIOR_AUTH_DENIED",
				"Prior tolerated therapy: " + domain.RAAS_INHIBITOR.Label(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			doc, err := r.Generate(tt.kind, data, 3)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, doc.Kind)
			assert.Equal(t, tt.title, doc.Title)
			assert.Equal(t, 3, doc.StepOrder)
			assert.Equal(t, preparedAt, doc.GeneratedAt)
			for _, s := range tt.contains {
				assert.Contains(t, doc.Content, s)
			}
		})
	}
}

func TestEveryClassRenders(t *testing.T) {
	r := newRegistry(t)
	for _, class := range r.Classes() {
		t.Run(string(class), func(t *testing.T) {
			rec := domain.ResolutionRecord{TherapyClass: class, Blocker: domain.FORMULARY_EXCLUDED}
			_, err := r.Generate(domain.DocumentAppealLetter, BuildFormData(rec, &domain.PatientSnapshot{SBP: 130, HeartRate: 70}, nil, preparedAt), 1)
			assert.NoError(t, err)
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		value    *float64
		unit     string
		expected string
	}{
		{nil, "%", "not documented"},
		{fptr(30), "%", "30%"},
		{fptr(4.24), "", "4.2"},
		{fptr(7.5), "%", "7.5%"},
		{fptr(100), "", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatNumber(tt.value, tt.unit))
		})
	}
}
