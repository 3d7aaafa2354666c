package engine

import (
	"github.com/gdmt-audit-server/internal/domain"
)

// normalize returns round(100 * score / ceiling), or 0 when ceiling is not positive.
func normalize(score, ceiling int) int {
	if ceiling <= 0 {
		return 0
	}
	return (200*score + ceiling) / (2 * ceiling)
}

// LinearScore sums dose-tier points over the pillars. CONTRAINDICATED pillars leave both the
// numerator and the per-pillar ceiling.
func LinearScore(pillars []domain.PillarResult) domain.GDMTScore {
	s := domain.GDMTScore{
		ExcludedPillars: []domain.TherapyClass{},
		Method:          domain.ScoreLinear,
	}
	for _, p := range pillars {
		if p.Status == domain.CONTRAINDICATED {
			s.ExcludedPillars = append(s.ExcludedPillars, p.Pillar)
			continue
		}
		s.Score += p.DoseTier.Points()
		s.MaxPossible += domain.MaxTierPoints
		if p.Status == domain.UNKNOWN {
			s.IsIncomplete = true
		}
	}
	s.Normalized = normalize(s.Score, s.MaxPossible)
	return s
}

// Criterion is one fixed point allotment of a composite score.
type Criterion struct {
	Name       string
	Max        int
	Points     int
	Applicable bool
	// Pillars that can satisfy the criterion. When all of them are CONTRAINDICATED the
	// criterion is dropped and the pillars are reported as excluded.
	Pillars []domain.TherapyClass
	// Incomplete marks a criterion that could not be evaluated for lack of data.
	Incomplete bool
}

// CompositeScore awards each applicable criterion its points. Criteria that do not apply, or
// whose pillars are all contraindicated, are removed from the maximum.
func CompositeScore(criteria []Criterion, pillars []domain.PillarResult) domain.GDMTScore {
	s := domain.GDMTScore{
		ExcludedPillars: []domain.TherapyClass{},
		Method:          domain.ScoreComposite,
	}
	status := make(map[domain.TherapyClass]domain.PillarStatus, len(pillars))
	for _, p := range pillars {
		status[p.Pillar] = p.Status
		if p.Status == domain.UNKNOWN {
			s.IsIncomplete = true
		}
	}

	excluded := make(map[domain.TherapyClass]bool)
	for _, c := range criteria {
		if c.Incomplete {
			s.IsIncomplete = true
		}
		if !c.Applicable {
			continue
		}
		if len(c.Pillars) > 0 && allContraindicated(c.Pillars, status) {
			for _, p := range c.Pillars {
				if !excluded[p] {
					excluded[p] = true
					s.ExcludedPillars = append(s.ExcludedPillars, p)
				}
			}
			continue
		}
		points := c.Points
		if points > c.Max {
			points = c.Max
		}
		s.Score += points
		s.MaxPossible += c.Max
	}
	s.Normalized = normalize(s.Score, s.MaxPossible)
	return s
}

func allContraindicated(classes []domain.TherapyClass, status map[domain.TherapyClass]domain.PillarStatus) bool {
	for _, c := range classes {
		if status[c] != domain.CONTRAINDICATED {
			return false
		}
	}
	return true
}

// scaledPoints returns round(allotment * tierPoints / MaxTierPoints).
func scaledPoints(allotment int, tier domain.DoseTier) int {
	return (2*allotment*tier.Points() + domain.MaxTierPoints) / (2 * domain.MaxTierPoints)
}
