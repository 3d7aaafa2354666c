package resolution

import (
	"fmt"
	"time"

	"github.com/gdmt-audit-server/internal/domain"
)

// SystemActor is recorded in history for transitions applied by the auto-driver.
const SystemActor = "system"

// transitions is the complete workflow table. A missing entry rejects the event.
var transitions = map[domain.ResolutionStatus]map[domain.ResolutionEventType]domain.ResolutionStatus{
	domain.StatusNotStarted: {
		domain.EventStart: domain.StatusAutoPreparing,
	},
	domain.StatusAutoPreparing: {
		domain.EventAutoStepComplete: domain.StatusAutoPreparing,
		domain.EventComplete:         domain.StatusCompleted,
	},
	domain.StatusClinicianReview: {
		domain.EventClinicianApprove: domain.StatusSubmitted,
		domain.EventClinicianReject:  domain.StatusAbandoned,
		domain.EventAbandon:          domain.StatusAbandoned,
	},
	domain.StatusSubmitted: {
		domain.EventSubmit: domain.StatusInProgress,
	},
	domain.StatusInProgress: {
		domain.EventExternalApprove: domain.StatusApproved,
		domain.EventExternalDeny:    domain.StatusDenied,
	},
	domain.StatusApproved: {
		domain.EventComplete: domain.StatusCompleted,
	},
	domain.StatusDenied: {
		domain.EventComplete: domain.StatusCompleted,
		domain.EventAbandon:  domain.StatusAbandoned,
	},
}

// Allowed returns the events accepted from status.
func Allowed(status domain.ResolutionStatus) []domain.ResolutionEventType {
	var out []domain.ResolutionEventType
	for _, ev := range []domain.ResolutionEventType{
		domain.EventStart, domain.EventAutoStepComplete, domain.EventClinicianApprove,
		domain.EventClinicianReject, domain.EventSubmit, domain.EventExternalApprove,
		domain.EventExternalDeny, domain.EventComplete, domain.EventAbandon,
	} {
		if _, ok := transitions[status][ev]; ok {
			out = append(out, ev)
		}
	}
	return out
}

// TransitionResult is the outcome of one Advance. A rejected result carries the unchanged
// record and the reason.
type TransitionResult struct {
	Record   domain.ResolutionRecord `json:"record"`
	Accepted bool                    `json:"accepted"`
	From     domain.ResolutionStatus `json:"from"`
	To       domain.ResolutionStatus `json:"to"`
	Reason   string                  `json:"reason,omitempty"`
}

func rejected(r domain.ResolutionRecord, format string, args ...interface{}) TransitionResult {
	return TransitionResult{
		Record: r.Clone(),
		From:   r.Status,
		To:     r.Status,
		Reason: fmt.Sprintf(format, args...),
	}
}

// NewRecord creates a not-started record tracking the pathway.
func NewRecord(id string, pw domain.ResolutionPathway, patientID string, at time.Time) domain.ResolutionRecord {
	steps := make([]domain.StepProgress, len(pw.Steps))
	for i, st := range pw.Steps {
		steps[i] = domain.StepProgress{
			Order:     st.Order,
			Title:     st.Title,
			Automated: st.Automated,
			Produces:  st.Produces,
			State:     domain.StepPending,
		}
	}
	return domain.ResolutionRecord{
		ID:           id,
		PathwayID:    pw.ID,
		PathwayKind:  pw.Kind,
		Blocker:      pw.Blocker,
		TherapyClass: pw.TherapyClass,
		PatientID:    patientID,
		Status:       domain.StatusNotStarted,
		Steps:        steps,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

// Advance applies one event. The input record is never modified.
func Advance(r domain.ResolutionRecord, ev domain.ResolutionEvent) TransitionResult {
	if r.Status.Terminal() {
		return rejected(r, "record is %s", r.Status)
	}
	if !ev.Type.IsValid() {
		return rejected(r, "unknown event %q", ev.Type)
	}
	to, ok := transitions[r.Status][ev.Type]
	if !ok {
		return rejected(r, "%s is not allowed from %s", ev.Type, r.Status)
	}

	next := r.Clone()
	idx, err := targetStep(next, ev)
	if err != nil {
		return rejected(r, "%v", err)
	}
	if idx >= 0 {
		markCompleted(&next.Steps[idx], ev)
	}

	switch to {
	case domain.StatusAutoPreparing:
		if i := next.NextPending(); i >= 0 && !next.Steps[i].Automated {
			to = domain.StatusClinicianReview
		}
	case domain.StatusCompleted:
		for i := range next.Steps {
			if next.Steps[i].State == domain.StepPending || next.Steps[i].State == domain.StepInProgress {
				next.Steps[i].State = domain.StepSkipped
			}
		}
	}
	next.Status = to

	if !to.Terminal() && to != domain.StatusAutoPreparing {
		if i := next.NextPending(); i >= 0 && !next.Steps[i].Automated {
			next.Steps[i].State = domain.StepInProgress
		}
	}

	entry := domain.HistoryEntry{Event: ev.Type, From: r.Status, To: to, Actor: ev.Actor, At: ev.At}
	if idx >= 0 {
		entry.Step = next.Steps[idx].Order
	}
	next.History = append(next.History, entry)
	if !ev.At.IsZero() {
		next.UpdatedAt = ev.At
	}

	return TransitionResult{Record: next, Accepted: true, From: r.Status, To: to}
}

// targetStep resolves the step an event completes, or -1 when it completes none. Reject and
// abandon complete no step, so their step reference is ignored.
func targetStep(r domain.ResolutionRecord, ev domain.ResolutionEvent) (int, error) {
	if ev.Type == domain.EventClinicianReject || ev.Type == domain.EventAbandon {
		return -1, nil
	}
	if ev.StepOrder != 0 {
		for i, st := range r.Steps {
			if st.Order != ev.StepOrder {
				continue
			}
			if st.State == domain.StepCompleted || st.State == domain.StepSkipped {
				return -1, fmt.Errorf("step %d is already %s", st.Order, st.State)
			}
			if ev.Type == domain.EventAutoStepComplete && !st.Automated {
				return -1, fmt.Errorf("step %d requires clinician input", st.Order)
			}
			return i, nil
		}
		return -1, fmt.Errorf("step %d does not exist", ev.StepOrder)
	}

	i := r.NextPending()
	switch ev.Type {
	case domain.EventAutoStepComplete:
		if i < 0 || !r.Steps[i].Automated {
			return -1, fmt.Errorf("no automated step is pending")
		}
		return i, nil
	case domain.EventClinicianApprove, domain.EventSubmit, domain.EventExternalApprove, domain.EventExternalDeny:
		if i >= 0 && !r.Steps[i].Automated {
			return i, nil
		}
	}
	return -1, nil
}

func markCompleted(st *domain.StepProgress, ev domain.ResolutionEvent) {
	at := ev.At
	st.State = domain.StepCompleted
	st.AutoCompleted = ev.Type == domain.EventAutoStepComplete
	st.CompletedAt = &at
}

// AutoDrive completes automated steps while the record is preparing and stops at the first
// step that needs a clinician.
func AutoDrive(r domain.ResolutionRecord, at time.Time) (domain.ResolutionRecord, []TransitionResult) {
	var results []TransitionResult
	for r.Status == domain.StatusAutoPreparing {
		i := r.NextPending()
		if i < 0 || !r.Steps[i].Automated {
			break
		}
		res := Advance(r, domain.ResolutionEvent{
			Type:      domain.EventAutoStepComplete,
			StepOrder: r.Steps[i].Order,
			Actor:     SystemActor,
			At:        at,
		})
		if !res.Accepted {
			break
		}
		results = append(results, res)
		r = res.Record
	}
	return r, results
}
