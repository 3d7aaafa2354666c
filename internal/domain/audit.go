package domain

import (
	"time"
)

// PillarResult is the evaluated state of one therapy class.
type PillarResult struct {
	Pillar             TherapyClass  `json:"pillar"`
	Status             PillarStatus  `json:"status"`
	DoseTier           DoseTier      `json:"dose_tier"`
	Blockers           []BlockerCode `json:"blockers"`
	MissingInformation []string      `json:"missing_information"`
}

// HasBlocker reports whether code is among the result's blockers.
func (p PillarResult) HasBlocker(code BlockerCode) bool {
	for _, b := range p.Blockers {
		if b == code {
			return true
		}
	}
	return false
}

// OnlyInertia reports whether the only blocker is the CLINICAL_INERTIA sentinel.
func (p PillarResult) OnlyInertia() bool {
	return len(p.Blockers) == 1 && p.Blockers[0] == CLINICAL_INERTIA
}

// GDMTScore is the normalized 0-100 adherence metric.
type GDMTScore struct {
	Score           int            `json:"score"`
	MaxPossible     int            `json:"max_possible"`
	Normalized      int            `json:"normalized"`
	ExcludedPillars []TherapyClass `json:"excluded_pillars"`
	IsIncomplete    bool           `json:"is_incomplete"`
	Method          ScoreMethod    `json:"method"`
}

// ScoreMethod names the scorer that produced a GDMTScore.
type ScoreMethod string

const (
	ScoreLinear    ScoreMethod = "linear"
	ScoreComposite ScoreMethod = "composite"
)

// AuditResult is the immutable output of one audit invocation.
type AuditResult struct {
	ID                 string         `json:"id,omitempty"`
	PatientID          string         `json:"patient_id,omitempty"`
	Domain             DomainID       `json:"domain"`
	Category           string         `json:"category"`
	CategoryLabel      string         `json:"category_label"`
	RulesetVersion     string         `json:"ruleset_version,omitempty"`
	Pillars            []PillarResult `json:"pillars"`
	Score              GDMTScore      `json:"score"`
	MissingInformation []string       `json:"missing_information"`
	NextBestQuestions  []string       `json:"next_best_questions"`
	GeneratedAt        time.Time      `json:"generated_at"`
}

// Pillar returns the result for class, if evaluated.
func (a *AuditResult) Pillar(class TherapyClass) (PillarResult, bool) {
	for _, p := range a.Pillars {
		if p.Pillar == class {
			return p, true
		}
	}
	return PillarResult{}, false
}

// ActionCategory is the kind of recommended action.
type ActionCategory string

const (
	ActionInitiate       ActionCategory = "initiate"
	ActionUptitrate      ActionCategory = "uptitrate"
	ActionResolveBlocker ActionCategory = "resolve_blocker"
	ActionOrderLabs      ActionCategory = "order_labs"
	ActionReassess       ActionCategory = "reassess"
)

// Priority ranks action items.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities, high first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// ActionItem is a derived recommendation. It is never persisted.
type ActionItem struct {
	ID        string         `json:"id"`
	Pillar    TherapyClass   `json:"pillar"`
	Category  ActionCategory `json:"category"`
	Priority  Priority       `json:"priority"`
	Rationale string         `json:"rationale"`
	Evidence  string         `json:"evidence,omitempty"`
	Cautions  []string       `json:"cautions,omitempty"`
	Blockers  []BlockerCode  `json:"blockers,omitempty"`
}
