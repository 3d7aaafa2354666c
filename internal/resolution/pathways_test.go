package resolution

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
)

func newSelector() *Selector {
	return NewSelector(ruleset.MustDefault())
}

func kinds(pws []domain.ResolutionPathway) []domain.PathwayKind {
	out := make([]domain.PathwayKind, len(pws))
	for i, pw := range pws {
		out[i] = pw.Kind
	}
	return out
}

func TestSelectPathwaysByBlocker(t *testing.T) {
	tolerated := &domain.PatientSnapshot{History: &domain.PatientHistory{
		PriorTolerated: []domain.TherapyClass{domain.RAAS_INHIBITOR},
	}}

	tests := []struct {
		name     string
		blocker  domain.BlockerCode
		class    domain.TherapyClass
		snapshot *domain.PatientSnapshot
		expected []domain.PathwayKind
	}{
		{
			name:    "PA denied with generic alternative",
			blocker: domain.PRIOR_AUTH_DENIED,
			class:   domain.RAAS_INHIBITOR,
			expected: []domain.PathwayKind{
				domain.PathwayPAAppeal, domain.PathwayBridgeTherapy, domain.PathwayGenericSubstitution,
			},
		},
		{
			name:    "PA denied without generic alternative",
			blocker: domain.PRIOR_AUTH_DENIED,
			class:   domain.SGLT2I,
			expected: []domain.PathwayKind{
				domain.PathwayPAAppeal, domain.PathwayBridgeTherapy, domain.PathwayGenericSubstitution,
			},
		},
		{
			name:     "PA pending",
			blocker:  domain.PRIOR_AUTH_PENDING,
			class:    domain.SGLT2I,
			expected: []domain.PathwayKind{domain.PathwayPAFollowUp, domain.PathwayBridgeTherapy},
		},
		{
			name:     "Step therapy without prior trial",
			blocker:  domain.STEP_THERAPY_REQUIRED,
			class:    domain.RAAS_INHIBITOR,
			expected: []domain.PathwayKind{domain.PathwayBridgeTherapy},
		},
		{
			name:     "Step therapy with prior tolerated trial",
			blocker:  domain.STEP_THERAPY_REQUIRED,
			class:    domain.RAAS_INHIBITOR,
			snapshot: tolerated,
			expected: []domain.PathwayKind{domain.PathwayBridgeTherapy, domain.PathwayStepTherapyException},
		},
		{
			name:     "Formulary excluded",
			blocker:  domain.FORMULARY_EXCLUDED,
			class:    domain.BETA_BLOCKER,
			expected: []domain.PathwayKind{domain.PathwayFormularyException, domain.PathwayGenericSubstitution},
		},
		{
			name:     "Copay prohibitive",
			blocker:  domain.COPAY_PROHIBITIVE,
			class:    domain.MRA,
			expected: []domain.PathwayKind{domain.PathwayCopayAssistance, domain.PathwayGenericSubstitution},
		},
		{
			name:     "Cost barrier without alternative",
			blocker:  domain.COST_BARRIER,
			class:    domain.GLP1_RA,
			expected: []domain.PathwayKind{domain.PathwayCopayAssistance, domain.PathwayGenericSubstitution},
		},
		{
			name:     "Not resumed after discharge",
			blocker:  domain.NOT_RESUMED_AFTER_DISCHARGE,
			class:    domain.BETA_BLOCKER,
			expected: []domain.PathwayKind{domain.PathwayDischargeResumption},
		},
		{
			name:     "Perioperative hold",
			blocker:  domain.PERIOPERATIVE_HOLD,
			class:    domain.SGLT2I,
			expected: []domain.PathwayKind{domain.PathwayPerioperativeResume},
		},
		{
			name:     "Clinical blocker has no pathway",
			blocker:  domain.HYPERKALEMIA,
			class:    domain.MRA,
			expected: []domain.PathwayKind{},
		},
		{
			name:     "Sentinel has no pathway",
			blocker:  domain.CLINICAL_INERTIA,
			class:    domain.MRA,
			expected: []domain.PathwayKind{},
		},
	}

	sel := newSelector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sel.Select(tt.blocker, tt.class, tt.snapshot)
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, kinds(got))
		})
	}
}

func TestSelectLinksAlternatives(t *testing.T) {
	pws := newSelector().Select(domain.PRIOR_AUTH_DENIED, domain.RAAS_INHIBITOR, nil)
	require.Len(t, pws, 3)

	appeal, bridge, sub := pws[0], pws[1], pws[2]
	assert.Equal(t, "prior_auth_denied:raas_inhibitor:pa_appeal", appeal.ID)
	assert.Equal(t, []string{sub.ID, bridge.ID}, appeal.Alternatives)
	assert.Equal(t, []string{appeal.ID}, bridge.Alternatives)
	assert.Equal(t, []string{appeal.ID}, sub.Alternatives)

	for _, pw := range pws {
		assert.Equal(t, domain.PRIOR_AUTH_DENIED, pw.Blocker)
		assert.Equal(t, domain.RAAS_INHIBITOR, pw.TherapyClass)
	}
}

func TestPADeniedOffersAppealAndSubstitutionForEveryClass(t *testing.T) {
	sel := newSelector()
	for _, class := range domain.AllTherapyClasses {
		t.Run(string(class), func(t *testing.T) {
			pws := sel.Select(domain.PRIOR_AUTH_DENIED, class, nil)
			byKind := make(map[domain.PathwayKind]domain.ResolutionPathway, len(pws))
			for _, pw := range pws {
				byKind[pw.Kind] = pw
			}

			appeal, ok := byKind[domain.PathwayPAAppeal]
			require.True(t, ok, "missing appeal")
			sub, ok := byKind[domain.PathwayGenericSubstitution]
			require.True(t, ok, "missing substitution")
			assert.Contains(t, appeal.Alternatives, sub.ID)
			assert.Contains(t, sub.Alternatives, appeal.ID)
		})
	}
}

func TestSubstitutionWithoutListedAlternativeStartsWithFormularySearch(t *testing.T) {
	pw, err := newSelector().Find(domain.PRIOR_AUTH_DENIED, domain.GLP1_RA, domain.PathwayGenericSubstitution, nil)
	require.NoError(t, err)
	assert.Equal(t, "Find a covered in-class alternative", pw.Steps[0].Title)
	assert.False(t, pw.Steps[0].Automated)

	pw, err = newSelector().Find(domain.PRIOR_AUTH_DENIED, domain.MRA, domain.PathwayGenericSubstitution, nil)
	require.NoError(t, err)
	assert.True(t, pw.Steps[0].Automated)
	assert.Contains(t, pw.Steps[0].Description, "spironolactone")
}

func TestSelectOrdersByUrgency(t *testing.T) {
	sel := newSelector()
	sel.Register(domain.PRIOR_AUTH_PENDING, func(ctx BuildContext) []domain.ResolutionPathway {
		return []domain.ResolutionPathway{
			{Kind: domain.PathwayGenericSubstitution, Urgency: domain.UrgencyRoutine},
			{Kind: domain.PathwayPAFollowUp, Urgency: domain.UrgencyHigh},
			{Kind: domain.PathwayDischargeResumption, Urgency: domain.UrgencyUrgent},
			{Kind: domain.PathwayBridgeTherapy, Urgency: domain.UrgencyHigh},
		}
	})

	got := sel.Select(domain.PRIOR_AUTH_PENDING, domain.MRA, nil)
	assert.Equal(t, []domain.PathwayKind{
		domain.PathwayDischargeResumption,
		domain.PathwayPAFollowUp,
		domain.PathwayBridgeTherapy,
		domain.PathwayGenericSubstitution,
	}, kinds(got))
}

func TestRegisterIgnoresClinicalBlockers(t *testing.T) {
	sel := newSelector()
	sel.Register(domain.HYPOTENSION, buildDischarge)
	assert.False(t, sel.Remediable(domain.HYPOTENSION))
	assert.True(t, sel.Remediable(domain.PRIOR_AUTH_DENIED))
}

func TestPathwayStepsAreContiguous(t *testing.T) {
	sel := newSelector()
	for _, code := range []domain.BlockerCode{
		domain.PRIOR_AUTH_DENIED, domain.PRIOR_AUTH_PENDING, domain.STEP_THERAPY_REQUIRED,
		domain.FORMULARY_EXCLUDED, domain.COPAY_PROHIBITIVE, domain.COST_BARRIER,
		domain.NOT_RESUMED_AFTER_DISCHARGE, domain.PERIOPERATIVE_HOLD,
	} {
		for _, pw := range sel.Select(code, domain.BETA_BLOCKER, nil) {
			require.NotEmpty(t, pw.Steps, pw.ID)
			for i, st := range pw.Steps {
				assert.Equal(t, i+1, st.Order, pw.ID)
			}
			assert.Equal(t, domain.AutomationPartial, pw.AutomationLevel, pw.ID)
			assert.NotEmpty(t, pw.Rationale, pw.ID)
		}
	}
}

func TestAutomationLevel(t *testing.T) {
	tests := []struct {
		name     string
		steps    []domain.PathwayStep
		expected domain.AutomationLevel
	}{
		{"No steps", nil, domain.AutomationManual},
		{"All automated", []domain.PathwayStep{{Automated: true}, {Automated: true}}, domain.AutomationFull},
		{"None automated", []domain.PathwayStep{{}, {}}, domain.AutomationManual},
		{"Mixed", []domain.PathwayStep{{Automated: true}, {}}, domain.AutomationPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, automationLevel(tt.steps))
		})
	}
}

func TestFind(t *testing.T) {
	sel := newSelector()

	pw, err := sel.Find(domain.PRIOR_AUTH_DENIED, domain.MRA, domain.PathwayPAAppeal, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PathwayPAAppeal, pw.Kind)
	assert.Equal(t, domain.DocumentAppealLetter, pw.Steps[2].Produces)

	_, err = sel.Find(domain.PRIOR_AUTH_DENIED, domain.SGLT2I, domain.PathwayCopayAssistance, nil)
	assert.True(t, errors.Is(err, domain.ErrUnknownPathway))
}
