// Package resolution selects remediation pathways for access and care-transition blockers and
// advances resolution records through their workflow. Everything here is pure: pathways are
// rebuilt on every call and records are replaced, never mutated.
package resolution

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
)

// BuildContext is what a pathway builder sees.
type BuildContext struct {
	Blocker      domain.BlockerCode
	Class        domain.TherapyClass
	Snapshot     *domain.PatientSnapshot
	Alternatives []string
}

// Builder returns the pathways for one blocker. IDs, step order, automation level and
// alternative links are filled in by the Selector.
type Builder func(ctx BuildContext) []domain.ResolutionPathway

// alternativeKinds lists the pathway kinds that can stand in for each other.
var alternativeKinds = map[domain.PathwayKind][]domain.PathwayKind{
	domain.PathwayPAAppeal:             {domain.PathwayGenericSubstitution, domain.PathwayBridgeTherapy},
	domain.PathwayPAFollowUp:           {domain.PathwayBridgeTherapy},
	domain.PathwayBridgeTherapy:        {domain.PathwayPAAppeal, domain.PathwayPAFollowUp, domain.PathwayStepTherapyException},
	domain.PathwayGenericSubstitution:  {domain.PathwayPAAppeal, domain.PathwayFormularyException, domain.PathwayCopayAssistance},
	domain.PathwayStepTherapyException: {domain.PathwayBridgeTherapy},
	domain.PathwayFormularyException:   {domain.PathwayGenericSubstitution},
	domain.PathwayCopayAssistance:      {domain.PathwayGenericSubstitution},
}

// Selector maps a (blocker, therapy class) pair to pathways through an injected builder registry.
type Selector struct {
	rules    *ruleset.Ruleset
	builders map[domain.BlockerCode]Builder
}

// NewSelector creates a selector with the default builders registered. The ruleset supplies
// generic alternatives for substitution pathways and may be nil.
func NewSelector(rs *ruleset.Ruleset) *Selector {
	s := &Selector{
		rules:    rs,
		builders: make(map[domain.BlockerCode]Builder),
	}
	s.Register(domain.PRIOR_AUTH_DENIED, buildPADenied)
	s.Register(domain.PRIOR_AUTH_PENDING, buildPAPending)
	s.Register(domain.STEP_THERAPY_REQUIRED, buildStepTherapy)
	s.Register(domain.FORMULARY_EXCLUDED, buildFormularyExcluded)
	s.Register(domain.COPAY_PROHIBITIVE, buildCost)
	s.Register(domain.COST_BARRIER, buildCost)
	s.Register(domain.NOT_RESUMED_AFTER_DISCHARGE, buildDischarge)
	s.Register(domain.PERIOPERATIVE_HOLD, buildPerioperative)
	return s
}

// Register installs or replaces the builder for a blocker. Blockers outside the remediable
// groups are ignored.
func (s *Selector) Register(code domain.BlockerCode, b Builder) {
	if code.RemediationGroup() == domain.RemediationNone {
		return
	}
	s.builders[code] = b
}

// Remediable reports whether the selector has a builder for the blocker.
func (s *Selector) Remediable(code domain.BlockerCode) bool {
	_, ok := s.builders[code]
	return ok
}

// Select returns the pathways for the pair ordered by urgency, or an empty list when the
// blocker cannot be remediated.
func (s *Selector) Select(blocker domain.BlockerCode, class domain.TherapyClass, p *domain.PatientSnapshot) []domain.ResolutionPathway {
	out := []domain.ResolutionPathway{}
	build, ok := s.builders[blocker]
	if !ok || !class.IsValid() {
		return out
	}
	if p == nil {
		p = &domain.PatientSnapshot{}
	}

	ctx := BuildContext{Blocker: blocker, Class: class, Snapshot: p}
	if s.rules != nil {
		ctx.Alternatives = s.rules.Alternatives(class)
	}

	ids := make(map[domain.PathwayKind]string)
	for _, pw := range build(ctx) {
		pw.Blocker = blocker
		pw.TherapyClass = class
		pw.ID = PathwayID(blocker, class, pw.Kind)
		pw.Steps = renumber(pw.Steps)
		pw.AutomationLevel = automationLevel(pw.Steps)
		ids[pw.Kind] = pw.ID
		out = append(out, pw)
	}

	for i := range out {
		out[i].Alternatives = nil
		for _, kind := range alternativeKinds[out[i].Kind] {
			if id, ok := ids[kind]; ok {
				out[i].Alternatives = append(out[i].Alternatives, id)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Urgency.Rank() < out[j].Urgency.Rank()
	})
	return out
}

// Find returns the pathway of the given kind for the pair.
func (s *Selector) Find(blocker domain.BlockerCode, class domain.TherapyClass, kind domain.PathwayKind, p *domain.PatientSnapshot) (domain.ResolutionPathway, error) {
	for _, pw := range s.Select(blocker, class, p) {
		if pw.Kind == kind {
			return pw, nil
		}
	}
	return domain.ResolutionPathway{}, fmt.Errorf("%w: %s for %s/%s", domain.ErrUnknownPathway, kind, blocker, class)
}

// PathwayID is the deterministic identifier of a pathway.
func PathwayID(blocker domain.BlockerCode, class domain.TherapyClass, kind domain.PathwayKind) string {
	return strings.ToLower(fmt.Sprintf("%s:%s:%s", blocker, class, kind))
}

// renumber makes step order 1-indexed and contiguous.
func renumber(steps []domain.PathwayStep) []domain.PathwayStep {
	out := make([]domain.PathwayStep, len(steps))
	for i, st := range steps {
		st.Order = i + 1
		out[i] = st
	}
	return out
}

func automationLevel(steps []domain.PathwayStep) domain.AutomationLevel {
	automated := 0
	for _, st := range steps {
		if st.Automated {
			automated++
		}
	}
	switch {
	case len(steps) > 0 && automated == len(steps):
		return domain.AutomationFull
	case automated == 0:
		return domain.AutomationManual
	default:
		return domain.AutomationPartial
	}
}
