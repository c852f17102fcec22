package valuation

import (
	"sort"

	"github.com/couchgm/auctionwatch/internal/models"
)

// ScarcityPolicy holds the tunable breakpoints and multipliers for
// positional scarcity classification. The shape (severe > moderate >
// normal >= surplus) is structural; the exact numbers are policy.
type ScarcityPolicy struct {
	// QualityTierCutoff caps the tier (1 = best) counted as rosterable
	// quality supply.
	QualityTierCutoff int `yaml:"quality_tier_cutoff"`

	// Ratio breakpoints: supply/need at or above Surplus is surplus, at or
	// above Normal is normal, at or above Moderate is moderate, below is
	// severe.
	SurplusRatio  float64 `yaml:"surplus_ratio"`
	NormalRatio   float64 `yaml:"normal_ratio"`
	ModerateRatio float64 `yaml:"moderate_ratio"`

	SurplusMultiplier  float64 `yaml:"surplus_multiplier"`
	NormalMultiplier   float64 `yaml:"normal_multiplier"`
	ModerateMultiplier float64 `yaml:"moderate_multiplier"`
	SevereMultiplier   float64 `yaml:"severe_multiplier"`
}

// DefaultScarcityPolicy mirrors the conventional breakpoints: 0.95 / 1.0 /
// 1.12 / 1.25 multipliers with quality capped at tier 5.
func DefaultScarcityPolicy() ScarcityPolicy {
	return ScarcityPolicy{
		QualityTierCutoff:  5,
		SurplusRatio:       1.5,
		NormalRatio:        1.0,
		ModerateRatio:      0.6,
		SurplusMultiplier:  0.95,
		NormalMultiplier:   1.0,
		ModerateMultiplier: 1.12,
		SevereMultiplier:   1.25,
	}
}

func (p ScarcityPolicy) classify(ratio float64) (models.ScarcityLevel, float64) {
	switch {
	case ratio >= p.SurplusRatio:
		return models.ScarcitySurplus, p.SurplusMultiplier
	case ratio >= p.NormalRatio:
		return models.ScarcityNormal, p.NormalMultiplier
	case ratio >= p.ModerateRatio:
		return models.ScarcityModerate, p.ModerateMultiplier
	default:
		return models.ScarcitySevere, p.SevereMultiplier
	}
}

// positionalScarcity compares remaining quality supply against remaining
// league-wide need for every configured roster position.
func (e *Engine) positionalScarcity(matches []models.MatchResult, league models.LeagueConfig) []models.PositionalScarcity {
	if len(league.RosterSlots) == 0 {
		return nil
	}

	quality := make(map[string]int)
	filled := make(map[string]int)
	for _, m := range matches {
		if m.Player == nil {
			continue
		}
		status := effectiveStatus(m)
		for _, pos := range m.Player.Positions {
			if status == models.StatusAvailable {
				if m.Player.Tier >= minTier && m.Player.Tier <= e.scarcity.QualityTierCutoff {
					quality[pos]++
				}
			} else {
				filled[pos]++
			}
		}
	}

	positions := make([]string, 0, len(league.RosterSlots))
	for pos := range league.RosterSlots {
		positions = append(positions, pos)
	}
	sort.Strings(positions)

	out := make([]models.PositionalScarcity, 0, len(positions))
	for _, pos := range positions {
		need := league.RosterSlots[pos]*league.Teams - filled[pos]
		if need < 0 {
			need = 0
		}

		s := models.PositionalScarcity{
			Position:     pos,
			QualityCount: quality[pos],
			LeagueNeed:   need,
		}
		if need == 0 {
			// Every slot filled league-wide: whatever supply remains is surplus.
			s.ScarcityRatio = float64(s.QualityCount)
			s.ScarcityLevel = models.ScarcitySurplus
			s.InflationAdjustment = e.scarcity.SurplusMultiplier
		} else {
			s.ScarcityRatio = float64(s.QualityCount) / float64(need)
			s.ScarcityLevel, s.InflationAdjustment = e.scarcity.classify(s.ScarcityRatio)
		}
		out = append(out, s)
	}
	return out
}

// maxScarcityMultiplier returns the highest scarcity multiplier among a
// player's eligible positions. A multi-eligible player is rewarded for its
// scarcest position, never penalized for also qualifying at a surplus one.
func maxScarcityMultiplier(positions []string, byPos map[string]models.PositionalScarcity) float64 {
	mult := 1.0
	found := false
	for _, pos := range positions {
		s, ok := byPos[pos]
		if !ok {
			continue
		}
		if !found || s.InflationAdjustment > mult {
			mult = s.InflationAdjustment
			found = true
		}
	}
	return mult
}
