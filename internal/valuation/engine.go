// Package valuation computes league-wide inflation and market-adjusted
// player values from the current auction state. The whole computation is
// stateless and re-derived from scratch on every pass; there is no
// incremental update path.
package valuation

import (
	"math"
	"sort"

	"github.com/couchgm/auctionwatch/internal/logger"
	"github.com/couchgm/auctionwatch/internal/match"
	"github.com/couchgm/auctionwatch/internal/models"
)

const (
	minTier = 1
	maxTier = 10
)

// Engine turns matched auction state into an InflationResult and per-player
// adjusted values.
type Engine struct {
	scarcity ScarcityPolicy
}

// NewEngine creates a valuation engine with the given scarcity policy.
func NewEngine(policy ScarcityPolicy) *Engine {
	return &Engine{scarcity: policy}
}

// Result is one full valuation pass over a room.
type Result struct {
	Inflation models.InflationResult  `json:"inflation"`
	Players   []models.AdjustedPlayer `json:"players"`
}

// Run computes inflation and adjusted values for the given matches and league
// settings. On-block players are treated as virtually drafted at the current
// bid so a player mid-auction immediately moves everyone else's value.
func (e *Engine) Run(matches []models.MatchResult, league models.LeagueConfig) Result {
	buckets := bucketByTier(matches)
	overall := overallInflation(buckets)

	spent, committed := moneyOut(matches)
	remainingBudget := league.TotalBudget() - spent - committed

	remainingProjected := 0.0
	for _, m := range matches {
		if m.Player != nil && effectiveStatus(m) == models.StatusAvailable {
			remainingProjected += m.Player.ProjectedValue
		}
	}

	// Remaining-budget method: one self-correcting multiplier from aggregate
	// money left over aggregate value left.
	baseMultiplier := 1 + overall
	if remainingProjected > 0 {
		baseMultiplier = remainingBudget / remainingProjected
	}

	scarcity := e.positionalScarcity(matches, league)
	scarcityByPos := make(map[string]models.PositionalScarcity, len(scarcity))
	for _, s := range scarcity {
		scarcityByPos[s.Position] = s
	}

	players := make([]models.AdjustedPlayer, 0, len(matches))
	for _, m := range matches {
		if m.Player == nil {
			continue
		}
		status := effectiveStatus(m)
		adj := models.AdjustedPlayer{Player: *m.Player, Status: status}

		switch status {
		case models.StatusAvailable:
			mult := baseMultiplier * maxScarcityMultiplier(m.Player.Positions, scarcityByPos)
			adj.AdjustedValue = math.Round(math.Max(1, m.Player.ProjectedValue*mult))
		default:
			// Drafted (or on the block): the price paid is the value, so UIs
			// can show surplus/deficit against projection directly.
			if m.Scraped.WinningBid != nil {
				adj.AdjustedValue = *m.Scraped.WinningBid
			}
		}
		players = append(players, adj)
	}

	return Result{
		Inflation: models.InflationResult{
			OverallInflationRate:    overall,
			RemainingBudget:         remainingBudget,
			RemainingProjectedValue: remainingProjected,
			BaseMultiplier:          baseMultiplier,
			TierBuckets:             buckets,
			PositionalScarcity:      scarcity,
		},
		Players: players,
	}
}

// bucketByTier accumulates drafted and on-block spend per projection tier.
// Unknown tiers land in the worst bucket.
func bucketByTier(matches []models.MatchResult) []models.TierBucket {
	acc := make(map[int]*models.TierBucket)
	for _, m := range matches {
		if m.Player == nil || m.Scraped.WinningBid == nil {
			continue
		}
		if status := effectiveStatus(m); status == models.StatusAvailable {
			continue
		}

		tier := m.Player.Tier
		if tier < minTier || tier > maxTier {
			tier = maxTier
		}
		b, ok := acc[tier]
		if !ok {
			b = &models.TierBucket{Tier: tier}
			acc[tier] = b
		}
		b.DraftedCount++
		b.TotalProjectedValue += m.Player.ProjectedValue
		b.TotalActualSpent += *m.Scraped.WinningBid
	}

	buckets := make([]models.TierBucket, 0, len(acc))
	for _, b := range acc {
		if b.TotalProjectedValue > 0 {
			b.InflationRate = (b.TotalActualSpent - b.TotalProjectedValue) / b.TotalProjectedValue
		}
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Tier < buckets[j].Tier })
	return buckets
}

// overallInflation is the value-weighted aggregate across tiers, not an
// arithmetic mean: a $1 player going for $5 is 400% inflation and would
// dominate a naive average, misleading bidders on expensive players.
func overallInflation(buckets []models.TierBucket) float64 {
	var weighted, totalProjected float64
	for _, b := range buckets {
		weighted += b.InflationRate * b.TotalProjectedValue
		totalProjected += b.TotalProjectedValue
	}
	if totalProjected == 0 {
		return 0
	}
	return weighted / totalProjected
}

// moneyOut sums money spent on drafted players and money committed to players
// currently on the block.
func moneyOut(matches []models.MatchResult) (spent, committed float64) {
	for _, m := range matches {
		if m.Scraped.WinningBid == nil {
			continue
		}
		switch effectiveStatus(m) {
		case models.StatusDrafted:
			spent += *m.Scraped.WinningBid
		case models.StatusOnBlock:
			committed += *m.Scraped.WinningBid
		}
	}
	return spent, committed
}

// effectiveStatus clamps illegal status values back to available rather than
// letting them poison the pass.
func effectiveStatus(m models.MatchResult) models.PlayerStatus {
	switch m.Scraped.Status {
	case models.StatusAvailable, models.StatusOnBlock, models.StatusDrafted:
		return m.Scraped.Status
	}
	logger.Warn("Clamping unknown player status to available",
		"player", m.Scraped.FullName, "status", string(m.Scraped.Status))
	return models.StatusAvailable
}

// Reconcile applies the per-player status state machine between two
// snapshots of the same room. Legal transitions pass through; anything else
// is logged and clamped to the previous status, except the reconciliation
// path: a previously drafted player with no corroborating record in the new
// snapshot is demoted to available (the room was cleared or reset), not left
// dangling.
func Reconcile(previous, current []models.ScrapedPlayer) []models.ScrapedPlayer {
	prevByKey := make(map[string]models.ScrapedPlayer, len(previous))
	for _, p := range previous {
		prevByKey[playerKey(p)] = p
	}

	out := make([]models.ScrapedPlayer, len(current))
	for i, p := range current {
		out[i] = p
		prev, ok := prevByKey[playerKey(p)]
		if !ok {
			continue
		}
		if !models.ValidTransition(prev.Status, p.Status) {
			logger.Warn("Rejecting invalid player status transition",
				"player", p.FullName, "from", string(prev.Status), "to", string(p.Status))
			out[i].Status = prev.Status
		}
		delete(prevByKey, playerKey(p))
	}

	// Drafted players that vanished upstream are phantoms from a cleared
	// room; demote rather than carry them forward.
	for _, prev := range prevByKey {
		if prev.Status == models.StatusDrafted {
			logger.Warn("Demoting phantom drafted player after room reset", "player", prev.FullName)
			prev.Status = models.StatusAvailable
			prev.WinningBid = nil
			prev.WinningTeam = ""
			out = append(out, prev)
		}
	}

	return out
}

func playerKey(p models.ScrapedPlayer) string {
	if p.SourceID != "" {
		return p.SourceID
	}
	return p.FullName + "|" + p.MLBTeam
}

// RunSnapshot is a convenience wrapper: group, match, then value a raw
// snapshot against the catalog.
func (e *Engine) RunSnapshot(snap *models.AuctionSnapshot, catalog []models.CatalogPlayer, league models.LeagueConfig) (match.AllResult, Result) {
	grouped := match.GroupScraped(snap.Players)
	all := match.AllPlayers(grouped, catalog)
	return all, e.Run(all.Matched, league)
}
