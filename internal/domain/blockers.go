package domain

import (
	"encoding/json"
	"sort"
)

// BlockerCode is a coded reason a pillar is not at target.
type BlockerCode string

const (
	// Vitals
	HYPOTENSION BlockerCode = "HYPOTENSION"
	BRADYCARDIA BlockerCode = "BRADYCARDIA"

	// Labs
	HYPERKALEMIA     BlockerCode = "HYPERKALEMIA"
	RENAL_IMPAIRMENT BlockerCode = "RENAL_IMPAIRMENT"

	// Safety
	RECENT_AKI             BlockerCode = "RECENT_AKI"
	ALLERGY                BlockerCode = "ALLERGY"
	ADVERSE_REACTION       BlockerCode = "ADVERSE_REACTION"
	ANGIOEDEMA_HISTORY     BlockerCode = "ANGIOEDEMA_HISTORY"
	PREGNANCY              BlockerCode = "PREGNANCY"
	DKA_HISTORY            BlockerCode = "DKA_HISTORY"
	THYROID_C_CELL_HISTORY BlockerCode = "THYROID_C_CELL_HISTORY"
	PANCREATITIS_HISTORY   BlockerCode = "PANCREATITIS_HISTORY"
	HYPOGLYCEMIA_HISTORY   BlockerCode = "HYPOGLYCEMIA_HISTORY"
	PERIOPERATIVE_HOLD     BlockerCode = "PERIOPERATIVE_HOLD"

	// Data quality
	UNKNOWN_LABS     BlockerCode = "UNKNOWN_LABS"
	STALE_LABS       BlockerCode = "STALE_LABS"
	STALE_VITALS     BlockerCode = "STALE_VITALS"
	LABS_UNAVAILABLE BlockerCode = "LABS_UNAVAILABLE"

	// Patient preference
	PATIENT_REFUSAL BlockerCode = "PATIENT_REFUSAL"
	COST_BARRIER    BlockerCode = "COST_BARRIER"

	// System
	PRIOR_AUTH_PENDING          BlockerCode = "PRIOR_AUTH_PENDING"
	PRIOR_AUTH_DENIED           BlockerCode = "PRIOR_AUTH_DENIED"
	STEP_THERAPY_REQUIRED       BlockerCode = "STEP_THERAPY_REQUIRED"
	COPAY_PROHIBITIVE           BlockerCode = "COPAY_PROHIBITIVE"
	FORMULARY_EXCLUDED          BlockerCode = "FORMULARY_EXCLUDED"
	NOT_RESUMED_AFTER_DISCHARGE BlockerCode = "NOT_RESUMED_AFTER_DISCHARGE"

	// CLINICAL_INERTIA is reported when no barrier was identified. It is never stored
	// alongside a real blocker; see Detection.
	CLINICAL_INERTIA BlockerCode = "CLINICAL_INERTIA"
)

// BlockerCategory partitions blocker codes.
type BlockerCategory string

const (
	CategoryVitals            BlockerCategory = "vitals"
	CategoryLabs              BlockerCategory = "labs"
	CategorySafety            BlockerCategory = "safety"
	CategoryDataQuality       BlockerCategory = "data_quality"
	CategoryPatientPreference BlockerCategory = "patient_preference"
	CategorySystem            BlockerCategory = "system"
	CategorySentinel          BlockerCategory = "sentinel"
)

var blockerCategories = map[BlockerCode]BlockerCategory{
	HYPOTENSION:                 CategoryVitals,
	BRADYCARDIA:                 CategoryVitals,
	HYPERKALEMIA:                CategoryLabs,
	RENAL_IMPAIRMENT:            CategoryLabs,
	RECENT_AKI:                  CategorySafety,
	ALLERGY:                     CategorySafety,
	ADVERSE_REACTION:            CategorySafety,
	ANGIOEDEMA_HISTORY:          CategorySafety,
	PREGNANCY:                   CategorySafety,
	DKA_HISTORY:                 CategorySafety,
	THYROID_C_CELL_HISTORY:      CategorySafety,
	PANCREATITIS_HISTORY:        CategorySafety,
	HYPOGLYCEMIA_HISTORY:        CategorySafety,
	PERIOPERATIVE_HOLD:          CategorySafety,
	UNKNOWN_LABS:                CategoryDataQuality,
	STALE_LABS:                  CategoryDataQuality,
	STALE_VITALS:                CategoryDataQuality,
	LABS_UNAVAILABLE:            CategoryDataQuality,
	PATIENT_REFUSAL:             CategoryPatientPreference,
	COST_BARRIER:                CategoryPatientPreference,
	PRIOR_AUTH_PENDING:          CategorySystem,
	PRIOR_AUTH_DENIED:           CategorySystem,
	STEP_THERAPY_REQUIRED:       CategorySystem,
	COPAY_PROHIBITIVE:           CategorySystem,
	FORMULARY_EXCLUDED:          CategorySystem,
	NOT_RESUMED_AFTER_DISCHARGE: CategorySystem,
	CLINICAL_INERTIA:            CategorySentinel,
}

// Category returns the category of the code. Unknown codes report an empty category.
func (b BlockerCode) Category() BlockerCategory {
	return blockerCategories[b]
}

// IsValid reports whether the code belongs to the closed enumeration.
func (b BlockerCode) IsValid() bool {
	_, ok := blockerCategories[b]
	return ok
}

// IsDataAvailability reports whether the code only describes missing or stale data.
func (b BlockerCode) IsDataAvailability() bool {
	return b.Category() == CategoryDataQuality
}

// String returns the string representation of the code.
func (b BlockerCode) String() string {
	return string(b)
}

// RemediationGroup classifies blockers that a resolution pathway can address.
type RemediationGroup string

const (
	RemediationNone           RemediationGroup = ""
	RemediationAccess         RemediationGroup = "access"
	RemediationCareTransition RemediationGroup = "care_transition"
	RemediationPatientCost    RemediationGroup = "patient_cost"
	RemediationOverride       RemediationGroup = "override"
)

// RemediationGroup returns the remediation group of the code, or RemediationNone.
func (b BlockerCode) RemediationGroup() RemediationGroup {
	switch b {
	case PRIOR_AUTH_PENDING, PRIOR_AUTH_DENIED, STEP_THERAPY_REQUIRED, FORMULARY_EXCLUDED:
		return RemediationAccess
	case NOT_RESUMED_AFTER_DISCHARGE:
		return RemediationCareTransition
	case COPAY_PROHIBITIVE, COST_BARRIER:
		return RemediationPatientCost
	case PERIOPERATIVE_HOLD:
		return RemediationOverride
	default:
		return RemediationNone
	}
}

// AccessBarrier is the access-barrier descriptor recorded on a medication.
type AccessBarrier string

const (
	AccessNone              AccessBarrier = ""
	AccessPAPending         AccessBarrier = "pa_pending"
	AccessPADenied          AccessBarrier = "pa_denied"
	AccessStepTherapy       AccessBarrier = "step_therapy"
	AccessCopayProhibitive  AccessBarrier = "copay_prohibitive"
	AccessFormularyExcluded AccessBarrier = "formulary_excluded"
)

// Blocker maps the descriptor to its blocker code. The second return is false for
// AccessNone and unrecognised descriptors.
func (a AccessBarrier) Blocker() (BlockerCode, bool) {
	switch a {
	case AccessPAPending:
		return PRIOR_AUTH_PENDING, true
	case AccessPADenied:
		return PRIOR_AUTH_DENIED, true
	case AccessStepTherapy:
		return STEP_THERAPY_REQUIRED, true
	case AccessCopayProhibitive:
		return COPAY_PROHIBITIVE, true
	case AccessFormularyExcluded:
		return FORMULARY_EXCLUDED, true
	default:
		return "", false
	}
}

// BlockerSet is an ordered set of real blocker codes. The zero value is ready to use.
// The sentinel CLINICAL_INERTIA is never admitted.
type BlockerSet struct {
	codes []BlockerCode
}

// NewBlockerSet builds a set from the given codes, dropping duplicates and the sentinel.
func NewBlockerSet(codes ...BlockerCode) BlockerSet {
	var s BlockerSet
	for _, c := range codes {
		s = s.With(c)
	}
	return s
}

// With returns a copy of the set including code.
func (s BlockerSet) With(code BlockerCode) BlockerSet {
	if code == CLINICAL_INERTIA || code == "" || s.Contains(code) {
		return s
	}
	out := make([]BlockerCode, len(s.codes), len(s.codes)+1)
	copy(out, s.codes)
	return BlockerSet{codes: append(out, code)}
}

// Contains reports whether the set holds code.
func (s BlockerSet) Contains(code BlockerCode) bool {
	for _, c := range s.codes {
		if c == code {
			return true
		}
	}
	return false
}

// ContainsAny reports whether the set holds any of codes.
func (s BlockerSet) ContainsAny(codes ...BlockerCode) bool {
	for _, c := range codes {
		if s.Contains(c) {
			return true
		}
	}
	return false
}

// Len returns the number of codes.
func (s BlockerSet) Len() int {
	return len(s.codes)
}

// Codes returns a copy of the codes in insertion order.
func (s BlockerSet) Codes() []BlockerCode {
	out := make([]BlockerCode, len(s.codes))
	copy(out, s.codes)
	return out
}

// OnlyDataAvailability reports whether the set is non-empty and holds only data-quality codes.
func (s BlockerSet) OnlyDataAvailability() bool {
	if len(s.codes) == 0 {
		return false
	}
	for _, c := range s.codes {
		if !c.IsDataAvailability() {
			return false
		}
	}
	return true
}

// Sorted returns the codes ordered by category then name, for stable output.
func (s BlockerSet) Sorted() []BlockerCode {
	out := s.Codes()
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := out[i].Category(), out[j].Category()
		if ci != cj {
			return ci < cj
		}
		return out[i] < out[j]
	})
	return out
}

// Detection is the outcome of blocker detection: either a non-empty set of real blockers or
// the "no barrier found" outcome. The two cannot be mixed.
type Detection struct {
	blockers BlockerSet
}

// Evaluated returns a detection holding the given blockers. With no real blockers the
// detection is NoBarrierFound.
func Evaluated(set BlockerSet) Detection {
	return Detection{blockers: set}
}

// NoBarrierFound reports whether detection found no real blocker.
func (d Detection) NoBarrierFound() bool {
	return d.blockers.Len() == 0
}

// Blockers returns the real blockers, empty when NoBarrierFound.
func (d Detection) Blockers() BlockerSet {
	return d.blockers
}

// Codes returns the wire representation: the real blockers, or the single sentinel
// CLINICAL_INERTIA. The result is never empty.
func (d Detection) Codes() []BlockerCode {
	if d.NoBarrierFound() {
		return []BlockerCode{CLINICAL_INERTIA}
	}
	return d.blockers.Codes()
}

// MarshalJSON encodes the detection as its wire codes.
func (d Detection) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Codes())
}

// UnmarshalJSON decodes wire codes; the sentinel decodes to NoBarrierFound.
func (d *Detection) UnmarshalJSON(data []byte) error {
	var codes []BlockerCode
	if err := json.Unmarshal(data, &codes); err != nil {
		return err
	}
	*d = Evaluated(NewBlockerSet(codes...))
	return nil
}
