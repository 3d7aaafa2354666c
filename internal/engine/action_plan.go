package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
)

// MaxActions caps the action plan length.
const MaxActions = 5

var actionPriority = map[domain.ActionCategory]domain.Priority{
	domain.ActionInitiate:       domain.PriorityHigh,
	domain.ActionUptitrate:      domain.PriorityHigh,
	domain.ActionOrderLabs:      domain.PriorityMedium,
	domain.ActionResolveBlocker: domain.PriorityMedium,
	domain.ActionReassess:       domain.PriorityLow,
}

// GenerateActionPlan derives a capped, priority-ordered action list from an audit result. The
// output depends only on its inputs, so repeated calls return identical items and identifiers.
// The ruleset is optional and only supplies evidence text.
func GenerateActionPlan(result *domain.AuditResult, rs *ruleset.Ruleset) []domain.ActionItem {
	items := []domain.ActionItem{}
	if result == nil {
		return items
	}

	for _, p := range result.Pillars {
		evidence := evidenceFor(rs, result.Domain, p.Pillar)
		label := p.Pillar.Label()

		switch p.Status {
		case domain.ON_TARGET, domain.CONTRAINDICATED:
			continue
		case domain.UNDERDOSED:
			items = append(items, newAction(p.Pillar, domain.ActionUptitrate,
				fmt.Sprintf("%s is prescribed at %s dose; titrate toward the target dose as tolerated",
					capitalize(label), strings.ToLower(string(p.DoseTier))),
				evidence, cautionsFor(p.Blockers), realBlockers(p.Blockers)))
		case domain.UNKNOWN:
			items = append(items, newAction(p.Pillar, domain.ActionReassess,
				fmt.Sprintf("Eligibility for %s cannot be determined: %s", label,
					strings.Join(p.MissingInformation, "; ")),
				evidence, nil, p.Blockers))
		case domain.MISSING:
			if p.OnlyInertia() {
				items = append(items, newAction(p.Pillar, domain.ActionInitiate,
					fmt.Sprintf("No documented barrier to %s; consider initiating", label),
					evidence, nil, nil))
				continue
			}
			items = append(items, blockerActions(p, label, evidence)...)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority.Rank() < items[j].Priority.Rank()
	})
	if len(items) > MaxActions {
		items = items[:MaxActions]
	}
	return items
}

// blockerActions emits one action per distinct action category, in first-seen order.
func blockerActions(p domain.PillarResult, label, evidence string) []domain.ActionItem {
	grouped := make(map[domain.ActionCategory][]domain.BlockerCode)
	var order []domain.ActionCategory
	for _, b := range p.Blockers {
		if b == domain.CLINICAL_INERTIA {
			continue
		}
		cat := domain.ActionResolveBlocker
		if b.IsDataAvailability() {
			cat = domain.ActionOrderLabs
		}
		if _, ok := grouped[cat]; !ok {
			order = append(order, cat)
		}
		grouped[cat] = append(grouped[cat], b)
	}

	out := make([]domain.ActionItem, 0, len(order))
	for _, cat := range order {
		codes := grouped[cat]
		var rationale string
		if cat == domain.ActionOrderLabs {
			rationale = fmt.Sprintf("Obtain current data before starting %s (%s)", label, joinCodes(codes))
		} else {
			rationale = fmt.Sprintf("Address barriers to starting %s (%s)", label, joinCodes(codes))
		}
		out = append(out, newAction(p.Pillar, cat, rationale, evidence, cautionsFor(codes), codes))
	}
	return out
}

func newAction(class domain.TherapyClass, cat domain.ActionCategory, rationale, evidence string,
	cautions []string, blockers []domain.BlockerCode) domain.ActionItem {
	return domain.ActionItem{
		ID:        ActionID(class, cat),
		Pillar:    class,
		Category:  cat,
		Priority:  actionPriority[cat],
		Rationale: rationale,
		Evidence:  evidence,
		Cautions:  cautions,
		Blockers:  blockers,
	}
}

// ActionID is the deterministic identifier of the action for a pillar and category.
func ActionID(class domain.TherapyClass, cat domain.ActionCategory) string {
	return strings.ToLower(fmt.Sprintf("%s:%s", class, cat))
}

func evidenceFor(rs *ruleset.Ruleset, id domain.DomainID, class domain.TherapyClass) string {
	if rs == nil {
		return ""
	}
	r, ok := rs.Rule(id, class)
	if !ok {
		return ""
	}
	if r.Evidence == "" {
		return r.GuidelineID
	}
	return fmt.Sprintf("%s: %s", r.GuidelineID, r.Evidence)
}

// cautionsFor describes the clinical blockers that call for monitoring.
func cautionsFor(codes []domain.BlockerCode) []string {
	var out []string
	for _, c := range codes {
		switch c.Category() {
		case domain.CategoryVitals, domain.CategoryLabs, domain.CategorySafety:
			out = append(out, cautionText(c))
		}
	}
	return out
}

func cautionText(c domain.BlockerCode) string {
	switch c {
	case domain.HYPOTENSION:
		return "Systolic blood pressure below the class floor; monitor for symptomatic hypotension"
	case domain.BRADYCARDIA:
		return "Heart rate below the class floor; monitor for symptomatic bradycardia"
	case domain.HYPERKALEMIA:
		return "Potassium above the class ceiling; recheck potassium before any change"
	case domain.RENAL_IMPAIRMENT:
		return "eGFR below the class floor; review renal dosing"
	case domain.RECENT_AKI:
		return "Recent acute kidney injury; confirm renal recovery"
	default:
		return strings.ToLower(strings.ReplaceAll(string(c), "_", " ")) + " documented"
	}
}

func realBlockers(codes []domain.BlockerCode) []domain.BlockerCode {
	var out []domain.BlockerCode
	for _, c := range codes {
		if c != domain.CLINICAL_INERTIA {
			out = append(out, c)
		}
	}
	return out
}

func joinCodes(codes []domain.BlockerCode) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
