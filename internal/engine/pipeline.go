// Package engine evaluates a patient snapshot against a ruleset. It is a set of pure
// functions: the reference date is always passed in and nothing is logged or stored.
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
)

// Context is the per-audit view handed to descriptor callbacks.
type Context struct {
	Domain   domain.DomainID
	Rules    *ruleset.Ruleset
	Snapshot *domain.PatientSnapshot
	Category string
	AsOf     time.Time
}

// Rule returns the domain rule for class, or the zero rule.
func (c Context) Rule(class domain.TherapyClass) ruleset.Rule {
	r, _ := c.Rules.Rule(c.Domain, class)
	return r
}

// Descriptor captures everything that differs between domains. The shared pipeline drives
// blocker detection, pillar evaluation and scoring from it.
type Descriptor struct {
	ID domain.DomainID

	// Categorize maps the snapshot to a category code and a clinician-facing label.
	Categorize func(rs *ruleset.Ruleset, p *domain.PatientSnapshot) (string, string)

	// Applicable gates whether a ruleset pillar is evaluated for this patient.
	Applicable func(ctx Context, class domain.TherapyClass) bool

	// Contraindications adds domain-specific absolute and relative blockers.
	Contraindications []Contraindication

	// Score turns the evaluated pillars into a GDMTScore. Nil selects LinearScore.
	Score func(ctx Context, pillars []domain.PillarResult) domain.GDMTScore

	// Questions returns domain-level next-best questions.
	Questions func(ctx Context) []string

	// Missing returns domain-level missing information.
	Missing func(ctx Context) []string
}

// Engine runs audits for a set of registered domains against one ruleset.
type Engine struct {
	rules   *ruleset.Ruleset
	domains map[domain.DomainID]*Descriptor
}

// New creates an engine. Without descriptors the heart failure, diabetes and hypertension
// descriptors are registered.
func New(rs *ruleset.Ruleset, descriptors ...*Descriptor) *Engine {
	if len(descriptors) == 0 {
		descriptors = DefaultDescriptors()
	}
	e := &Engine{
		rules:   rs,
		domains: make(map[domain.DomainID]*Descriptor, len(descriptors)),
	}
	for _, d := range descriptors {
		e.domains[d.ID] = d
	}
	return e
}

// DefaultDescriptors returns the built-in domain descriptors.
func DefaultDescriptors() []*Descriptor {
	return []*Descriptor{HeartFailure(), Diabetes(), Hypertension()}
}

// Ruleset returns the ruleset the engine evaluates against.
func (e *Engine) Ruleset() *ruleset.Ruleset {
	return e.rules
}

// Domains returns the registered domain identifiers in a stable order.
func (e *Engine) Domains() []domain.DomainID {
	out := make([]domain.DomainID, 0, len(e.domains))
	for id := range e.domains {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Audit evaluates the snapshot for one domain as of the given reference date. The only errors
// are an unregistered domain and a nil snapshot; missing clinical data is reported in the result.
func (e *Engine) Audit(id domain.DomainID, p *domain.PatientSnapshot, asOf time.Time) (*domain.AuditResult, error) {
	d, ok := e.domains[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidDomain, id)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: snapshot is nil", domain.ErrInvalidSnapshot)
	}

	category, label := d.Categorize(e.rules, p)
	ctx := Context{Domain: id, Rules: e.rules, Snapshot: p, Category: category, AsOf: asOf}
	staleness := e.rules.Staleness()
	fresh := CheckFreshness(p.LabsDate, p.VitalsDate, asOf, staleness)

	result := &domain.AuditResult{
		PatientID:          p.PatientID,
		Domain:             id,
		Category:           category,
		CategoryLabel:      label,
		RulesetVersion:     e.rules.Version(),
		Pillars:            []domain.PillarResult{},
		MissingInformation: []string{},
		NextBestQuestions:  []string{},
		GeneratedAt:        asOf,
	}

	missing := newOrderedSet()
	questions := newOrderedSet()
	if d.Missing != nil {
		missing.add(d.Missing(ctx)...)
	}
	if d.Questions != nil {
		questions.add(d.Questions(ctx)...)
	}

	for _, class := range e.rules.Pillars(id) {
		if d.Applicable != nil && !d.Applicable(ctx, class) {
			continue
		}
		thresholds := e.rules.Thresholds(id, class)
		med, hasRecord := p.MedicationFor(class)

		detection := DetectBlockers(DetectionInput{
			Class:      class,
			Initiation: !(hasRecord && med.Active()),
			Thresholds: thresholds,
			Staleness:  staleness,
			Snapshot:   p,
			AsOf:       asOf,
			Extra:      d.Contraindications,
		})

		pillar := EvaluatePillar(PillarInput{
			Class:      class,
			Medication: med,
			HasRecord:  hasRecord,
			Detection:  detection,
			Absolute:   absoluteCodes(class, d.Contraindications),
			Missing:    MissingInformation(p, thresholds, fresh, staleness),
		})
		result.Pillars = append(result.Pillars, pillar)
		missing.add(pillar.MissingInformation...)

		if pillar.Status == domain.MISSING && pillar.OnlyInertia() {
			questions.add(fmt.Sprintf("Has the patient previously tried %s, and was it tolerated?",
				withArticle(class.Label())))
		}
	}

	if d.Score != nil {
		result.Score = d.Score(ctx, result.Pillars)
	} else {
		result.Score = LinearScore(result.Pillars)
	}
	result.MissingInformation = missing.items()
	result.NextBestQuestions = questions.items()
	return result, nil
}

// orderedSet deduplicates strings keeping first-seen order.
type orderedSet struct {
	seen  map[string]bool
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool), order: []string{}}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		if v == "" || s.seen[v] {
			continue
		}
		s.seen[v] = true
		s.order = append(s.order, v)
	}
}

func (s *orderedSet) items() []string {
	return append([]string{}, s.order...)
}

func withArticle(noun string) string {
	if noun == "" {
		return noun
	}
	switch noun[0] {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return "an " + noun
	default:
		return "a " + noun
	}
}
