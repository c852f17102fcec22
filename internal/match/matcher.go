// Package match reconciles loosely-structured scraped auction records
// against the projections catalog.
package match

import (
	"strings"

	"github.com/couchgm/auctionwatch/internal/models"
	"github.com/couchgm/auctionwatch/internal/normalize"
)

// generational suffixes stripped by the second matching pass.
var nameSuffixes = map[string]bool{
	"jr":  true,
	"sr":  true,
	"ii":  true,
	"iii": true,
	"iv":  true,
}

// AllResult partitions a snapshot's players into matched and unmatched.
type AllResult struct {
	Matched   []models.MatchResult
	Unmatched []models.MatchResult
}

// Player matches one scraped player against the catalog using four ordered
// passes, stopping at the first that yields a unique or disambiguable result:
// exact normalized name, suffix-stripped name, last-name+team, unmatched.
// A missing match is an expected outcome, never an error.
func Player(scraped models.ScrapedPlayer, catalog []models.CatalogPlayer) models.MatchResult {
	name := normalize.Name(scraped.FullName)
	team := normalize.Team(scraped.MLBTeam)

	// Pass 1: exact normalized name.
	if res, ok := byName(scraped, catalog, name, team, func(c string) string { return c }, models.ConfidenceExact); ok {
		return res
	}

	// Pass 2: generational suffixes stripped from both sides.
	if res, ok := byName(scraped, catalog, stripSuffix(name), team, stripSuffix, models.ConfidencePartial); ok {
		return res
	}

	// Pass 3: surname plus team, unique candidate only.
	if res, ok := bySurnameAndTeam(scraped, catalog, name, team); ok {
		return res
	}

	return models.MatchResult{Scraped: scraped, Confidence: models.ConfidenceUnmatched}
}

// byName runs a name-equality pass. transform is applied to the normalized
// catalog name before comparing. With several candidates the scraped team
// picks the winner; if the team does not disambiguate the first candidate is
// returned at partial confidence, which is documented ambiguity rather than
// an error.
func byName(scraped models.ScrapedPlayer, catalog []models.CatalogPlayer, name, team string, transform func(string) string, confidence models.MatchConfidence) (models.MatchResult, bool) {
	if name == "" {
		return models.MatchResult{}, false
	}

	var candidates []models.CatalogPlayer
	for _, c := range catalog {
		if transform(normalize.Name(c.Name)) == name {
			candidates = append(candidates, c)
		}
	}

	switch len(candidates) {
	case 0:
		return models.MatchResult{}, false
	case 1:
		p := candidates[0]
		return models.MatchResult{Scraped: scraped, Player: &p, Confidence: confidence}, true
	}

	for _, c := range candidates {
		if normalize.Team(c.Team) == team {
			p := c
			return models.MatchResult{Scraped: scraped, Player: &p, Confidence: confidence}, true
		}
	}

	p := candidates[0]
	return models.MatchResult{Scraped: scraped, Player: &p, Confidence: models.ConfidencePartial}, true
}

// bySurnameAndTeam matches the final token of the scraped name against the
// catalog surname, requiring the team to also match. Accepted only when
// exactly one candidate remains.
func bySurnameAndTeam(scraped models.ScrapedPlayer, catalog []models.CatalogPlayer, name, team string) (models.MatchResult, bool) {
	fields := strings.Fields(stripSuffix(name))
	if len(fields) == 0 || team == "" {
		return models.MatchResult{}, false
	}
	surname := fields[len(fields)-1]

	var candidates []models.CatalogPlayer
	for _, c := range catalog {
		cf := strings.Fields(stripSuffix(normalize.Name(c.Name)))
		if len(cf) == 0 {
			continue
		}
		if cf[len(cf)-1] == surname && normalize.Team(c.Team) == team {
			candidates = append(candidates, c)
		}
	}

	if len(candidates) != 1 {
		return models.MatchResult{}, false
	}
	p := candidates[0]
	return models.MatchResult{Scraped: scraped, Player: &p, Confidence: models.ConfidencePartial}, true
}

// AllPlayers matches every scraped player independently against the catalog
// (O(n*m), fine at catalog sizes in the low thousands) and computes inflation
// figures for matched pairs that carry a winning bid. The two result slices
// always partition the input.
func AllPlayers(scraped []models.ScrapedPlayer, catalog []models.CatalogPlayer) AllResult {
	var out AllResult
	for _, sp := range scraped {
		res := Player(sp, catalog)
		if res.Player == nil {
			out.Unmatched = append(out.Unmatched, res)
			continue
		}
		if sp.WinningBid != nil {
			amount := *sp.WinningBid - res.Player.ProjectedValue
			res.InflationAmount = &amount
			if res.Player.ProjectedValue > 0 {
				pct := amount / res.Player.ProjectedValue * 100
				res.InflationPercent = &pct
			}
		}
		out.Matched = append(out.Matched, res)
	}
	return out
}

// stripSuffix drops a trailing generational suffix from a normalized name.
func stripSuffix(name string) string {
	fields := strings.Fields(name)
	if len(fields) > 1 && nameSuffixes[fields[len(fields)-1]] {
		return strings.Join(fields[:len(fields)-1], " ")
	}
	return name
}
