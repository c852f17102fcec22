package match

import (
	"github.com/couchgm/auctionwatch/internal/logger"
	"github.com/couchgm/auctionwatch/internal/models"
	"github.com/couchgm/auctionwatch/internal/normalize"
)

// GroupScraped merges scraped records that refer to the same player before
// matching, so two-way players that the upstream site lists once per role
// (hitter and pitcher rows) collapse into one record generically instead of
// being special-cased by name. Records group by sourceId when the site
// provides one, falling back to normalized name+team.
//
// Groups that still hold records with conflicting statuses after the merge
// are a data-quality signal; they are logged and the first record's status
// wins.
func GroupScraped(players []models.ScrapedPlayer) []models.ScrapedPlayer {
	type group struct {
		merged models.ScrapedPlayer
		count  int
	}

	var order []string
	groups := make(map[string]*group, len(players))

	for _, p := range players {
		key := p.SourceID
		if key == "" {
			key = normalize.Name(p.FullName) + "|" + normalize.Team(p.MLBTeam)
		}

		g, ok := groups[key]
		if !ok {
			groups[key] = &group{merged: p, count: 1}
			order = append(order, key)
			continue
		}
		g.count++
		mergeInto(&g.merged, p)
	}

	out := make([]models.ScrapedPlayer, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if g.count > 1 {
			logger.Debug("Merged multi-role scraped records",
				"player", g.merged.FullName, "records", g.count)
		}
		out = append(out, g.merged)
	}
	return out
}

// mergeInto folds a duplicate record into the group representative: the
// union of positions, plus whichever record carries draft outcome data.
func mergeInto(dst *models.ScrapedPlayer, src models.ScrapedPlayer) {
	seen := make(map[string]bool, len(dst.Positions))
	for _, pos := range dst.Positions {
		seen[pos] = true
	}
	for _, pos := range src.Positions {
		if !seen[pos] {
			dst.Positions = append(dst.Positions, pos)
			seen[pos] = true
		}
	}

	if dst.WinningBid == nil && src.WinningBid != nil {
		dst.WinningBid = src.WinningBid
		dst.WinningTeam = src.WinningTeam
	}

	if dst.Status != src.Status {
		// Conflicting statuses across roles; keep the first record's status
		// but surface the inconsistency.
		logger.Warn("Scraped records for one player disagree on status",
			"player", dst.FullName, "kept", string(dst.Status), "dropped", string(src.Status))
	}
}
