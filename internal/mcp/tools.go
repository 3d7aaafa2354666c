package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/service"
)

// AuditPatientParams defines parameters for the audit_patient tool
type AuditPatientParams struct {
	Domain   string                  `json:"domain"`
	Snapshot *domain.PatientSnapshot `json:"snapshot"`
	AsOf     string                  `json:"as_of,omitempty"`
}

// AuditPatientResult is the audit plus its derived action plan
type AuditPatientResult struct {
	Audit      *domain.AuditResult `json:"audit"`
	ActionPlan []domain.ActionItem `json:"action_plan"`
}

// ActionPlanParams defines parameters for the generate_action_plan tool
type ActionPlanParams struct {
	Audit *domain.AuditResult `json:"audit"`
}

// PathwaysParams defines parameters for the select_resolution_pathways tool
type PathwaysParams struct {
	Blocker      domain.BlockerCode      `json:"blocker"`
	TherapyClass domain.TherapyClass     `json:"therapy_class"`
	Snapshot     *domain.PatientSnapshot `json:"snapshot,omitempty"`
}

// AdvanceParams defines parameters for the advance_resolution tool
type AdvanceParams struct {
	RecordID  string                     `json:"record_id"`
	Event     domain.ResolutionEventType `json:"event"`
	StepOrder int                        `json:"step_order,omitempty"`
	Actor     string                     `json:"actor,omitempty"`
	Note      string                     `json:"note,omitempty"`
}

// AdvanceResult reports the outcome of an event
type AdvanceResult struct {
	Accepted bool                    `json:"accepted"`
	From     domain.ResolutionStatus `json:"from"`
	To       domain.ResolutionStatus `json:"to"`
	Reason   string                  `json:"reason,omitempty"`
	Progress int                     `json:"progress"`
	Record   domain.ResolutionRecord `json:"record"`
}

// GetResolutionParams defines parameters for the get_resolution tool
type GetResolutionParams struct {
	RecordID string `json:"record_id"`
}

type toolDef struct {
	name        string
	description string
	schema      string
	handle      toolFunc
}

const snapshotSchema = `{"type":"object","description":"Patient snapshot: sbp and heart_rate are required; labs (potassium, egfr, ef, a1c), dates and medications are optional","properties":{"patient_id":{"type":"string"},"sbp":{"type":"number"},"heart_rate":{"type":"number"},"medications":{"type":"array","items":{"type":"object"}}},"required":["sbp","heart_rate"]}`

func (s *Server) tools() []toolDef {
	return []toolDef{
		{
			name:        "audit_patient",
			description: "Audit a patient snapshot against guideline-directed medical therapy for one domain (heart_failure, diabetes, hypertension) and return the score, per-pillar status with blockers, and an action plan",
			schema:      `{"type":"object","properties":{"domain":{"type":"string","enum":["heart_failure","diabetes","hypertension"]},"snapshot":` + snapshotSchema + `,"as_of":{"type":"string","description":"Reference date, RFC3339 or YYYY-MM-DD; defaults to now"}},"required":["domain","snapshot"]}`,
			handle:      s.auditPatient,
		},
		{
			name:        "generate_action_plan",
			description: "Derive the prioritized action items (at most five) from an audit result",
			schema:      `{"type":"object","properties":{"audit":{"type":"object"}},"required":["audit"]}`,
			handle:      s.generateActionPlan,
		},
		{
			name:        "select_resolution_pathways",
			description: "List the remediation pathways for a blocker on a therapy class, most urgent first",
			schema:      `{"type":"object","properties":{"blocker":{"type":"string"},"therapy_class":{"type":"string"},"snapshot":{"type":"object"}},"required":["blocker","therapy_class"]}`,
			handle:      s.selectPathways,
		},
		{
			name:        "start_resolution",
			description: "Start tracking a resolution pathway; automated steps run immediately and generated documents are attached",
			schema:      `{"type":"object","properties":{"blocker":{"type":"string"},"therapy_class":{"type":"string"},"pathway_kind":{"type":"string"},"snapshot":{"type":"object"},"actor":{"type":"string"}},"required":["blocker","therapy_class","pathway_kind"]}`,
			handle:      s.startResolution,
		},
		{
			name:        "advance_resolution",
			description: "Apply a workflow event (clinician_approve, clinician_reject, submit, external_approve, external_deny, complete, abandon) to a resolution record",
			schema:      `{"type":"object","properties":{"record_id":{"type":"string"},"event":{"type":"string"},"step_order":{"type":"integer"},"actor":{"type":"string"},"note":{"type":"string"}},"required":["record_id","event"]}`,
			handle:      s.advanceResolution,
		},
		{
			name:        "get_resolution",
			description: "Get a resolution record with its steps, documents and history",
			schema:      `{"type":"object","properties":{"record_id":{"type":"string"}},"required":["record_id"]}`,
			handle:      s.getResolution,
		},
	}
}

func parseAsOf(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("as_of must be RFC3339 or YYYY-MM-DD: %q", value)
	}
	return t, nil
}

func (s *Server) auditPatient(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var params AuditPatientParams
	if err := decode(args, &params); err != nil {
		return nil, err
	}
	id, err := domain.ParseDomainID(params.Domain)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, params.Domain)
	}
	asOf, err := parseAsOf(params.AsOf)
	if err != nil {
		return nil, err
	}

	res, err := s.audits.Audit(ctx, id, params.Snapshot, asOf)
	if err != nil {
		return nil, err
	}
	return AuditPatientResult{Audit: res, ActionPlan: s.audits.ActionPlan(res)}, nil
}

func (s *Server) generateActionPlan(_ context.Context, args json.RawMessage) (interface{}, error) {
	var params ActionPlanParams
	if err := decode(args, &params); err != nil {
		return nil, err
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit is required")
	}
	return s.audits.ActionPlan(params.Audit), nil
}

func (s *Server) selectPathways(_ context.Context, args json.RawMessage) (interface{}, error) {
	var params PathwaysParams
	if err := decode(args, &params); err != nil {
		return nil, err
	}
	if !params.Blocker.IsValid() {
		return nil, fmt.Errorf("unknown blocker %q", params.Blocker)
	}
	if !params.TherapyClass.IsValid() {
		return nil, fmt.Errorf("unknown therapy class %q", params.TherapyClass)
	}
	return s.resolutions.Pathways(params.Blocker, params.TherapyClass, params.Snapshot), nil
}

func (s *Server) startResolution(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req service.StartRequest
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	return s.resolutions.Start(ctx, req)
}

func (s *Server) advanceResolution(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var params AdvanceParams
	if err := decode(args, &params); err != nil {
		return nil, err
	}
	res, err := s.resolutions.Advance(ctx, params.RecordID, domain.ResolutionEvent{
		Type:      params.Event,
		StepOrder: params.StepOrder,
		Actor:     params.Actor,
		Note:      params.Note,
	})
	if err != nil {
		return nil, err
	}
	return AdvanceResult{
		Accepted: res.Accepted,
		From:     res.From,
		To:       res.To,
		Reason:   res.Reason,
		Progress: res.Record.Progress(),
		Record:   res.Record,
	}, nil
}

func (s *Server) getResolution(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var params GetResolutionParams
	if err := decode(args, &params); err != nil {
		return nil, err
	}
	return s.resolutions.Get(ctx, params.RecordID)
}
