// Package ruleset holds the Guideline-as-Code document: rule entries per domain, the
// per-therapy-class threshold table, staleness windows and composite score weights.
//
// A Ruleset is built once and is read-only afterwards, so it can be shared between
// goroutines and passed explicitly into the engine. Several versions may coexist.
package ruleset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gdmt-audit-server/internal/domain"
)

// Named thresholds a rule entry may override on top of the class table.
const (
	KeySBPFloor         = "sbp_floor"
	KeyHRFloor          = "hr_floor"
	KeyPotassiumCeiling = "potassium_ceiling"
	KeyEGFRInitiation   = "egfr_initiation"
	KeyEGFRContinuation = "egfr_continuation"
)

// Thresholds are the numeric safety limits for one therapy class. A nil limit is not checked.
type Thresholds struct {
	SBPFloor         *float64 `yaml:"sbp_floor,omitempty" json:"sbp_floor,omitempty"`
	HRFloor          *float64 `yaml:"hr_floor,omitempty" json:"hr_floor,omitempty"`
	PotassiumCeiling *float64 `yaml:"potassium_ceiling,omitempty" json:"potassium_ceiling,omitempty"`
	EGFRInitiation   *float64 `yaml:"egfr_initiation,omitempty" json:"egfr_initiation,omitempty"`
	EGFRContinuation *float64 `yaml:"egfr_continuation,omitempty" json:"egfr_continuation,omitempty"`
}

// HasLabLimit reports whether any limit depends on a laboratory value.
func (t Thresholds) HasLabLimit() bool {
	return t.PotassiumCeiling != nil || t.EGFRInitiation != nil || t.EGFRContinuation != nil
}

// HasVitalsLimit reports whether any limit depends on a vital sign.
func (t Thresholds) HasVitalsLimit() bool {
	return t.SBPFloor != nil || t.HRFloor != nil
}

// EGFRFloor returns the initiation or continuation floor. When only one of the two is
// configured it serves both purposes.
func (t Thresholds) EGFRFloor(initiation bool) *float64 {
	if initiation {
		if t.EGFRInitiation != nil {
			return t.EGFRInitiation
		}
		return t.EGFRContinuation
	}
	if t.EGFRContinuation != nil {
		return t.EGFRContinuation
	}
	return t.EGFRInitiation
}

func (t Thresholds) withOverrides(values map[string]float64) Thresholds {
	out := t
	for key, v := range values {
		v := v
		switch key {
		case KeySBPFloor:
			out.SBPFloor = &v
		case KeyHRFloor:
			out.HRFloor = &v
		case KeyPotassiumCeiling:
			out.PotassiumCeiling = &v
		case KeyEGFRInitiation:
			out.EGFRInitiation = &v
		case KeyEGFRContinuation:
			out.EGFRContinuation = &v
		}
	}
	return out
}

// ClassEntry is one row of the per-therapy-class table.
type ClassEntry struct {
	Thresholds `yaml:",inline" json:"thresholds"`

	GenericAlternatives []string `yaml:"generic_alternatives,omitempty" json:"generic_alternatives,omitempty"`
}

// Rule is one guideline recommendation bound to a therapy class within a domain.
type Rule struct {
	ID           string              `yaml:"id" json:"id"`
	GuidelineID  string              `yaml:"guideline_id" json:"guideline_id"`
	TherapyClass domain.TherapyClass `yaml:"therapy_class" json:"therapy_class"`
	Domain       domain.DomainID     `yaml:"domain" json:"domain"`
	Categories   []string            `yaml:"categories,omitempty" json:"categories,omitempty"`
	Thresholds   map[string]float64  `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
	Conditions   map[string]bool     `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Evidence     string              `yaml:"evidence,omitempty" json:"evidence,omitempty"`
}

// AppliesTo reports whether the rule covers the disease category. An empty category set
// covers every category.
func (r Rule) AppliesTo(category string) bool {
	if len(r.Categories) == 0 {
		return true
	}
	for _, c := range r.Categories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// Threshold returns the named numeric threshold or fallback when it is not set.
func (r Rule) Threshold(name string, fallback float64) float64 {
	if v, ok := r.Thresholds[name]; ok {
		return v
	}
	return fallback
}

// Condition returns the named boolean condition, false when absent.
func (r Rule) Condition(name string) bool {
	return r.Conditions[name]
}

// Staleness holds the global data-freshness windows in days.
type Staleness struct {
	LabsDays          int `yaml:"labs_days" json:"labs_days"`
	VitalsDays        int `yaml:"vitals_days" json:"vitals_days"`
	PerioperativeDays int `yaml:"perioperative_days" json:"perioperative_days"`
}

// CompositeWeights are the point allotments of the composite scorer.
type CompositeWeights struct {
	MetforminDosing int `yaml:"metformin_dosing" json:"metformin_dosing"`
	GlycemicTarget  int `yaml:"glycemic_target" json:"glycemic_target"`
	Cardiorenal     int `yaml:"cardiorenal" json:"cardiorenal"`
	InsulinCoverage int `yaml:"insulin_coverage" json:"insulin_coverage"`
}

// Total returns the sum of every allotment.
func (w CompositeWeights) Total() int {
	return w.MetforminDosing + w.GlycemicTarget + w.Cardiorenal + w.InsulinCoverage
}

// Document is the serialized form of a ruleset.
type Document struct {
	Version   string                             `yaml:"version" json:"version"`
	Staleness Staleness                          `yaml:"staleness" json:"staleness"`
	Composite CompositeWeights                   `yaml:"composite" json:"composite"`
	Classes   map[domain.TherapyClass]ClassEntry `yaml:"classes" json:"classes"`
	Rules     []Rule                             `yaml:"rules" json:"rules"`
}

// Ruleset is a validated, indexed Document.
type Ruleset struct {
	doc      Document
	byDomain map[domain.DomainID][]Rule
}

// New validates doc and builds the lookup indexes.
func New(doc Document) (*Ruleset, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	rs := &Ruleset{
		doc:      doc,
		byDomain: make(map[domain.DomainID][]Rule),
	}
	for _, r := range doc.Rules {
		rs.byDomain[r.Domain] = append(rs.byDomain[r.Domain], r)
	}
	return rs, nil
}

// Validate checks the document for structural and clinical consistency.
func (d Document) Validate() error {
	if strings.TrimSpace(d.Version) == "" {
		return fmt.Errorf("ruleset: version is required")
	}
	if d.Staleness.LabsDays <= 0 || d.Staleness.VitalsDays <= 0 || d.Staleness.PerioperativeDays <= 0 {
		return fmt.Errorf("ruleset %s: staleness windows must be positive", d.Version)
	}
	if d.Composite.Total() <= 0 {
		return fmt.Errorf("ruleset %s: composite weights must be positive", d.Version)
	}
	for class, entry := range d.Classes {
		if !class.IsValid() {
			return fmt.Errorf("ruleset %s: unknown therapy class %q", d.Version, class)
		}
		if err := checkEGFR(entry.Thresholds); err != nil {
			return fmt.Errorf("ruleset %s: class %s: %w", d.Version, class, err)
		}
	}

	seen := make(map[string]bool, len(d.Rules))
	covered := make(map[domain.DomainID]bool)
	for _, r := range d.Rules {
		switch {
		case r.ID == "":
			return fmt.Errorf("ruleset %s: rule without id", d.Version)
		case seen[r.ID]:
			return fmt.Errorf("ruleset %s: duplicate rule id %s", d.Version, r.ID)
		case r.GuidelineID == "":
			return fmt.Errorf("ruleset %s: rule %s has no guideline id", d.Version, r.ID)
		case !r.TherapyClass.IsValid():
			return fmt.Errorf("ruleset %s: rule %s: unknown therapy class %q", d.Version, r.ID, r.TherapyClass)
		}
		if _, err := domain.ParseDomainID(string(r.Domain)); err != nil {
			return fmt.Errorf("ruleset %s: rule %s: %w", d.Version, r.ID, err)
		}
		if _, ok := d.Classes[r.TherapyClass]; !ok {
			return fmt.Errorf("ruleset %s: rule %s: class %s missing from class table", d.Version, r.ID, r.TherapyClass)
		}
		if err := checkEGFR(d.Classes[r.TherapyClass].withOverrides(r.Thresholds)); err != nil {
			return fmt.Errorf("ruleset %s: rule %s: %w", d.Version, r.ID, err)
		}
		seen[r.ID] = true
		covered[r.Domain] = true
	}
	for _, id := range domain.AllDomains {
		if !covered[id] {
			return fmt.Errorf("ruleset %s: no rules for domain %s", d.Version, id)
		}
	}
	return nil
}

func checkEGFR(t Thresholds) error {
	if t.EGFRInitiation != nil && t.EGFRContinuation != nil && *t.EGFRContinuation > *t.EGFRInitiation {
		return fmt.Errorf("eGFR continuation floor %.0f exceeds initiation floor %.0f",
			*t.EGFRContinuation, *t.EGFRInitiation)
	}
	return nil
}

// Version returns the pinned ruleset version.
func (rs *Ruleset) Version() string {
	return rs.doc.Version
}

// Staleness returns the data-freshness windows.
func (rs *Ruleset) Staleness() Staleness {
	return rs.doc.Staleness
}

// Composite returns the composite scorer weights.
func (rs *Ruleset) Composite() CompositeWeights {
	return rs.doc.Composite
}

// Rules returns the rule entries of a domain in document order.
func (rs *Ruleset) Rules(id domain.DomainID) []Rule {
	return append([]Rule(nil), rs.byDomain[id]...)
}

// Rule returns the first rule for class within the domain.
func (rs *Ruleset) Rule(id domain.DomainID, class domain.TherapyClass) (Rule, bool) {
	for _, r := range rs.byDomain[id] {
		if r.TherapyClass == class {
			return r, true
		}
	}
	return Rule{}, false
}

// Pillars returns the distinct therapy classes of a domain in document order.
func (rs *Ruleset) Pillars(id domain.DomainID) []domain.TherapyClass {
	var out []domain.TherapyClass
	seen := make(map[domain.TherapyClass]bool)
	for _, r := range rs.byDomain[id] {
		if !seen[r.TherapyClass] {
			seen[r.TherapyClass] = true
			out = append(out, r.TherapyClass)
		}
	}
	return out
}

// Applies reports whether any rule for class in the domain covers category.
func (rs *Ruleset) Applies(id domain.DomainID, class domain.TherapyClass, category string) bool {
	for _, r := range rs.byDomain[id] {
		if r.TherapyClass == class && r.AppliesTo(category) {
			return true
		}
	}
	return false
}

// Thresholds returns the class table limits for class with the domain rule's overrides applied.
func (rs *Ruleset) Thresholds(id domain.DomainID, class domain.TherapyClass) Thresholds {
	t := rs.doc.Classes[class].Thresholds
	if r, ok := rs.Rule(id, class); ok {
		t = t.withOverrides(r.Thresholds)
	}
	return t
}

// Alternatives returns the generic therapeutic alternatives for class.
func (rs *Ruleset) Alternatives(class domain.TherapyClass) []string {
	return append([]string(nil), rs.doc.Classes[class].GenericAlternatives...)
}

// Classes returns the therapy classes in the class table, sorted.
func (rs *Ruleset) Classes() []domain.TherapyClass {
	out := make([]domain.TherapyClass, 0, len(rs.doc.Classes))
	for c := range rs.doc.Classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Document returns a copy of the underlying document.
func (rs *Ruleset) Document() Document {
	doc := rs.doc
	doc.Rules = append([]Rule(nil), rs.doc.Rules...)
	doc.Classes = make(map[domain.TherapyClass]ClassEntry, len(rs.doc.Classes))
	for k, v := range rs.doc.Classes {
		doc.Classes[k] = v
	}
	return doc
}
