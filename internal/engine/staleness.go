package engine

import (
	"time"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
)

// Freshness is the outcome of the stale-data check for one snapshot.
type Freshness struct {
	LabsUnknown bool
	LabsStale   bool
	VitalsStale bool
}

// LabCodes returns the lab-related data-quality codes.
func (f Freshness) LabCodes() []domain.BlockerCode {
	switch {
	case f.LabsUnknown:
		return []domain.BlockerCode{domain.UNKNOWN_LABS}
	case f.LabsStale:
		return []domain.BlockerCode{domain.STALE_LABS}
	default:
		return nil
	}
}

// VitalsCodes returns the vitals-related data-quality codes.
func (f Freshness) VitalsCodes() []domain.BlockerCode {
	if f.VitalsStale {
		return []domain.BlockerCode{domain.STALE_VITALS}
	}
	return nil
}

// Codes returns every stale-data code in a fixed order.
func (f Freshness) Codes() []domain.BlockerCode {
	return append(f.LabCodes(), f.VitalsCodes()...)
}

// CheckFreshness flags lab and vital inputs that are missing or older than the windows.
// A date exactly on the window boundary is still fresh. An absent vitals date is not flagged
// because the vitals themselves are mandatory.
func CheckFreshness(labsDate, vitalsDate *time.Time, asOf time.Time, w ruleset.Staleness) Freshness {
	var f Freshness
	if labsDate == nil {
		f.LabsUnknown = true
	} else if daysBetween(*labsDate, asOf) > w.LabsDays {
		f.LabsStale = true
	}
	if vitalsDate != nil && daysBetween(*vitalsDate, asOf) > w.VitalsDays {
		f.VitalsStale = true
	}
	return f
}

// daysBetween counts calendar days from a to b in UTC. Negative when a is after b.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
