package domain

import (
	"time"
)

// Urgency ranks resolution pathways.
type Urgency string

const (
	UrgencyUrgent  Urgency = "urgent"
	UrgencyHigh    Urgency = "high"
	UrgencyRoutine Urgency = "routine"
)

// Rank orders urgencies, urgent first.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyUrgent:
		return 0
	case UrgencyHigh:
		return 1
	default:
		return 2
	}
}

// AutomationLevel summarises how many pathway steps run without clinician input.
type AutomationLevel string

const (
	AutomationFull    AutomationLevel = "full"
	AutomationPartial AutomationLevel = "partial"
	AutomationManual  AutomationLevel = "manual"
)

// PathwayKind names a remediation strategy.
type PathwayKind string

const (
	PathwayPAAppeal             PathwayKind = "pa_appeal"
	PathwayPAFollowUp           PathwayKind = "pa_follow_up"
	PathwayBridgeTherapy        PathwayKind = "bridge_therapy"
	PathwayGenericSubstitution  PathwayKind = "generic_substitution"
	PathwayStepTherapyException PathwayKind = "step_therapy_exception"
	PathwayFormularyException   PathwayKind = "formulary_exception"
	PathwayCopayAssistance      PathwayKind = "copay_assistance"
	PathwayDischargeResumption  PathwayKind = "discharge_resumption"
	PathwayPerioperativeResume  PathwayKind = "perioperative_resumption"
)

// DocumentKind names a document a pathway step can produce.
type DocumentKind string

const (
	DocumentNone             DocumentKind = ""
	DocumentPAForm           DocumentKind = "pa_form"
	DocumentAppealLetter     DocumentKind = "appeal_letter"
	DocumentExceptionRequest DocumentKind = "exception_request"
)

// PathwayStep is one ordered step of a pathway. Order is 1-indexed and contiguous.
type PathwayStep struct {
	Order       int          `json:"order"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Automated   bool         `json:"automated"`
	Produces    DocumentKind `json:"produces,omitempty"`
}

// ResolutionPathway is a static remediation plan for a (blocker, therapy class) pair.
type ResolutionPathway struct {
	ID              string          `json:"id"`
	Kind            PathwayKind     `json:"kind"`
	Name            string          `json:"name"`
	Blocker         BlockerCode     `json:"blocker"`
	TherapyClass    TherapyClass    `json:"therapy_class"`
	Urgency         Urgency         `json:"urgency"`
	AutomationLevel AutomationLevel `json:"automation_level"`
	Steps           []PathwayStep   `json:"steps"`
	Alternatives    []string        `json:"alternatives,omitempty"`
	Rationale       string          `json:"rationale,omitempty"`
}

// ResolutionStatus is a state of the resolution workflow.
type ResolutionStatus string

const (
	StatusNotStarted      ResolutionStatus = "not_started"
	StatusAutoPreparing   ResolutionStatus = "auto_preparing"
	StatusClinicianReview ResolutionStatus = "clinician_review"
	StatusSubmitted       ResolutionStatus = "submitted"
	StatusInProgress      ResolutionStatus = "in_progress"
	StatusApproved        ResolutionStatus = "approved"
	StatusDenied          ResolutionStatus = "denied"
	StatusCompleted       ResolutionStatus = "completed"
	StatusAbandoned       ResolutionStatus = "abandoned"
)

// Terminal reports whether the status admits no outgoing transitions.
func (s ResolutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// ResolutionEventType is a discrete workflow event.
type ResolutionEventType string

const (
	EventStart            ResolutionEventType = "start"
	EventAutoStepComplete ResolutionEventType = "auto_step_complete"
	EventClinicianApprove ResolutionEventType = "clinician_approve"
	EventClinicianReject  ResolutionEventType = "clinician_reject"
	EventSubmit           ResolutionEventType = "submit"
	EventExternalApprove  ResolutionEventType = "external_approve"
	EventExternalDeny     ResolutionEventType = "external_deny"
	EventComplete         ResolutionEventType = "complete"
	EventAbandon          ResolutionEventType = "abandon"
)

// IsValid reports whether the event type is known.
func (e ResolutionEventType) IsValid() bool {
	switch e {
	case EventStart, EventAutoStepComplete, EventClinicianApprove, EventClinicianReject,
		EventSubmit, EventExternalApprove, EventExternalDeny, EventComplete, EventAbandon:
		return true
	default:
		return false
	}
}

// ResolutionEvent drives the state machine. StepOrder, when non-zero, names the step the
// event completes.
type ResolutionEvent struct {
	Type      ResolutionEventType `json:"type"`
	StepOrder int                 `json:"step_order,omitempty"`
	Actor     string              `json:"actor,omitempty"`
	Note      string              `json:"note,omitempty"`
	At        time.Time           `json:"at"`
}

// StepState is the progress of one step.
type StepState string

const (
	StepPending    StepState = "pending"
	StepInProgress StepState = "in_progress"
	StepCompleted  StepState = "completed"
	StepSkipped    StepState = "skipped"
)

// StepProgress tracks one pathway step inside a record.
type StepProgress struct {
	Order         int          `json:"order"`
	Title         string       `json:"title"`
	Automated     bool         `json:"automated"`
	Produces      DocumentKind `json:"produces,omitempty"`
	State         StepState    `json:"state"`
	AutoCompleted bool         `json:"auto_completed"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

// GeneratedDocument is a document attached to a record by the document collaborators.
type GeneratedDocument struct {
	Kind        DocumentKind `json:"kind"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	StepOrder   int          `json:"step_order,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// HistoryEntry records one accepted transition.
type HistoryEntry struct {
	Event ResolutionEventType `json:"event"`
	From  ResolutionStatus    `json:"from"`
	To    ResolutionStatus    `json:"to"`
	Step  int                 `json:"step,omitempty"`
	Actor string              `json:"actor,omitempty"`
	At    time.Time           `json:"at"`
}

// ResolutionRecord tracks one in-progress pathway. Records are replaced, never mutated.
type ResolutionRecord struct {
	ID           string              `json:"id"`
	PathwayID    string              `json:"pathway_id"`
	PathwayKind  PathwayKind         `json:"pathway_kind"`
	Blocker      BlockerCode         `json:"blocker"`
	TherapyClass TherapyClass        `json:"therapy_class"`
	PatientID    string              `json:"patient_id,omitempty"`
	Snapshot     *PatientSnapshot    `json:"snapshot,omitempty"`
	Status       ResolutionStatus    `json:"status"`
	Steps        []StepProgress      `json:"steps"`
	Documents    []GeneratedDocument `json:"documents,omitempty"`
	History      []HistoryEntry      `json:"history,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// NextPending returns the index of the first step that is neither completed nor skipped, or -1.
func (r ResolutionRecord) NextPending() int {
	for i, s := range r.Steps {
		if s.State == StepPending || s.State == StepInProgress {
			return i
		}
	}
	return -1
}

// Progress returns round(100 * (completed + skipped) / total), or 0 without steps.
func (r ResolutionRecord) Progress() int {
	if len(r.Steps) == 0 {
		return 0
	}
	done := 0
	for _, s := range r.Steps {
		if s.State == StepCompleted || s.State == StepSkipped {
			done++
		}
	}
	return (200*done + len(r.Steps)) / (2 * len(r.Steps))
}

// Clone returns a deep copy of the record.
func (r ResolutionRecord) Clone() ResolutionRecord {
	out := r
	out.Steps = append([]StepProgress(nil), r.Steps...)
	for i := range out.Steps {
		if out.Steps[i].CompletedAt != nil {
			t := *out.Steps[i].CompletedAt
			out.Steps[i].CompletedAt = &t
		}
	}
	out.Documents = append([]GeneratedDocument(nil), r.Documents...)
	out.History = append([]HistoryEntry(nil), r.History...)
	if r.Snapshot != nil {
		snap := *r.Snapshot
		out.Snapshot = &snap
	}
	return out
}
