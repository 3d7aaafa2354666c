package resolution

import (
	"fmt"
	"strings"

	"github.com/gdmt-audit-server/internal/domain"
)

func auto(title, description string) domain.PathwayStep {
	return domain.PathwayStep{Title: title, Description: description, Automated: true}
}

func manual(title, description string) domain.PathwayStep {
	return domain.PathwayStep{Title: title, Description: description}
}

func producing(st domain.PathwayStep, kind domain.DocumentKind) domain.PathwayStep {
	st.Produces = kind
	return st
}

func paAppeal(ctx BuildContext) domain.ResolutionPathway {
	label := ctx.Class.Label()
	return domain.ResolutionPathway{
		Kind:      domain.PathwayPAAppeal,
		Name:      fmt.Sprintf("Prior authorization appeal for %s", label),
		Urgency:   domain.UrgencyHigh,
		Rationale: "The payer denied prior authorization; guideline-directed therapy supports an appeal.",
		Steps: []domain.PathwayStep{
			auto("Gather clinical documentation", "Collect diagnosis, ejection fraction, labs and prior therapy from the chart."),
			producing(auto("Prepare prior authorization data", "Assemble the payer form fields from the audit."), domain.DocumentPAForm),
			producing(auto("Draft appeal letter", "Fill the per-class appeal letter template with the guideline citation."), domain.DocumentAppealLetter),
			manual("Clinician review and signature", "Review the drafted appeal and sign."),
			manual("Submit appeal to payer", "Send the signed appeal through the payer portal or fax."),
			manual("Record payer decision", "Record the payer's decision on the appeal."),
		},
	}
}

func paFollowUp(ctx BuildContext) domain.ResolutionPathway {
	return domain.ResolutionPathway{
		Kind:      domain.PathwayPAFollowUp,
		Name:      fmt.Sprintf("Prior authorization follow-up for %s", ctx.Class.Label()),
		Urgency:   domain.UrgencyHigh,
		Rationale: "A prior authorization request is pending with the payer.",
		Steps: []domain.PathwayStep{
			auto("Check request status", "Look up the pending request and its expected decision date."),
			producing(auto("Compile supporting documentation", "Assemble the payer form fields from the audit."), domain.DocumentPAForm),
			manual("Clinician review", "Confirm the supporting documentation is complete."),
			manual("Contact payer", "Escalate the pending request with the payer."),
		},
	}
}

func bridgeTherapy(ctx BuildContext) domain.ResolutionPathway {
	return domain.ResolutionPathway{
		Kind:      domain.PathwayBridgeTherapy,
		Name:      fmt.Sprintf("Bridge supply of %s", ctx.Class.Label()),
		Urgency:   domain.UrgencyHigh,
		Rationale: "Avoid a gap in therapy while the access barrier is resolved.",
		Steps: []domain.PathwayStep{
			auto("Identify bridge options", "List sample, manufacturer starter and short-fill options."),
			auto("Check program eligibility", "Screen the patient against manufacturer bridge program criteria."),
			manual("Clinician approves bridge regimen", "Approve the bridge product and duration."),
			manual("Dispense bridge supply", "Dispense or prescribe the bridge supply."),
		},
	}
}

func genericSubstitution(ctx BuildContext) domain.ResolutionPathway {
	identify := manual("Find a covered in-class alternative",
		fmt.Sprintf("Search the patient's formulary for a covered %s agent.", ctx.Class.Label()))
	rationale := "No generic alternative is listed for this class; a covered agent must be found on the formulary."
	if len(ctx.Alternatives) > 0 {
		names := strings.Join(ctx.Alternatives, ", ")
		identify = auto("Identify covered alternative", fmt.Sprintf("Match formulary coverage for %s.", names))
		rationale = fmt.Sprintf("Covered therapeutic alternatives: %s.", names)
	}
	return domain.ResolutionPathway{
		Kind:      domain.PathwayGenericSubstitution,
		Name:      fmt.Sprintf("Substitute a covered %s", ctx.Class.Label()),
		Urgency:   domain.UrgencyRoutine,
		Rationale: rationale,
		Steps: []domain.PathwayStep{
			identify,
			auto("Verify therapeutic equivalence", "Check dose equivalence and interactions for the alternative."),
			manual("Clinician approves substitution", "Approve the alternative agent and dose."),
			manual("Send new prescription", "Transmit the new prescription and notify the patient."),
		},
	}
}

func exceptionRequest(ctx BuildContext, kind domain.PathwayKind, name, rationale string) domain.ResolutionPathway {
	return domain.ResolutionPathway{
		Kind:      kind,
		Name:      fmt.Sprintf("%s for %s", name, ctx.Class.Label()),
		Urgency:   domain.UrgencyHigh,
		Rationale: rationale,
		Steps: []domain.PathwayStep{
			auto("Compile medical necessity evidence", "Collect prior therapy history and guideline citations."),
			producing(auto("Generate exception request", "Fill the exception request from the audit."), domain.DocumentExceptionRequest),
			manual("Clinician review and signature", "Review the exception request and sign."),
			manual("Submit exception request", "Send the request to the payer."),
			manual("Record payer decision", "Record the payer's decision on the exception."),
		},
	}
}

func copayAssistance(ctx BuildContext) domain.ResolutionPathway {
	return domain.ResolutionPathway{
		Kind:      domain.PathwayCopayAssistance,
		Name:      fmt.Sprintf("Copay assistance for %s", ctx.Class.Label()),
		Urgency:   domain.UrgencyHigh,
		Rationale: "Out-of-pocket cost is preventing the patient from filling the prescription.",
		Steps: []domain.PathwayStep{
			auto("Screen manufacturer copay programs", "Match the patient's coverage against manufacturer copay cards."),
			auto("Screen foundation assistance", "Check independent foundation funds for the indication."),
			auto("Prepare enrollment", "Prefill enrollment forms with patient and prescriber details."),
			manual("Confirm enrollment with patient", "Review the program terms with the patient and enroll."),
		},
	}
}

func buildPADenied(ctx BuildContext) []domain.ResolutionPathway {
	return []domain.ResolutionPathway{paAppeal(ctx), bridgeTherapy(ctx), genericSubstitution(ctx)}
}

func buildPAPending(ctx BuildContext) []domain.ResolutionPathway {
	return []domain.ResolutionPathway{paFollowUp(ctx), bridgeTherapy(ctx)}
}

func buildStepTherapy(ctx BuildContext) []domain.ResolutionPathway {
	out := []domain.ResolutionPathway{bridgeTherapy(ctx)}
	if ctx.Snapshot.ToleratedPreviously(ctx.Class) {
		out = append(out, exceptionRequest(ctx, domain.PathwayStepTherapyException,
			"Step therapy exception",
			"The patient has a documented prior tolerated trial of this class."))
	}
	return out
}

func buildFormularyExcluded(ctx BuildContext) []domain.ResolutionPathway {
	return []domain.ResolutionPathway{
		exceptionRequest(ctx, domain.PathwayFormularyException,
			"Formulary exception",
			"The prescribed agent is excluded from the patient's formulary."),
		genericSubstitution(ctx),
	}
}

func buildCost(ctx BuildContext) []domain.ResolutionPathway {
	return []domain.ResolutionPathway{copayAssistance(ctx), genericSubstitution(ctx)}
}

func buildDischarge(ctx BuildContext) []domain.ResolutionPathway {
	return []domain.ResolutionPathway{{
		Kind:      domain.PathwayDischargeResumption,
		Name:      fmt.Sprintf("Resume %s after discharge", ctx.Class.Label()),
		Urgency:   domain.UrgencyUrgent,
		Rationale: "The therapy was held during admission and not resumed at discharge.",
		Steps: []domain.PathwayStep{
			auto("Reconcile discharge medications", "Compare the discharge list with the pre-admission regimen."),
			auto("Review post-discharge vitals and labs", "Check the values that led to the hold."),
			manual("Clinician decides on resumption", "Resume, adjust or document the reason to keep holding."),
			manual("Notify patient", "Tell the patient about the resumed prescription."),
		},
	}}
}

func buildPerioperative(ctx BuildContext) []domain.ResolutionPathway {
	return []domain.ResolutionPathway{{
		Kind:      domain.PathwayPerioperativeResume,
		Name:      fmt.Sprintf("Resume %s after surgery", ctx.Class.Label()),
		Urgency:   domain.UrgencyRoutine,
		Rationale: "The therapy is held around a scheduled procedure.",
		Steps: []domain.PathwayStep{
			auto("Confirm procedure date and hold window", "Derive the hold and restart dates from the surgery date."),
			auto("Schedule restart reminder", "Queue a reminder for the planned restart date."),
			manual("Clinician confirms restart", "Confirm the patient is eating and drinking normally and restart."),
		},
	}}
}
