package models

import "time"

// PlayerStatus tracks where a player is in the auction lifecycle.
type PlayerStatus string

const (
	StatusAvailable PlayerStatus = "available"
	StatusOnBlock   PlayerStatus = "on_block"
	StatusDrafted   PlayerStatus = "drafted"
)

// MatchConfidence describes how a scraped player was paired with a catalog entry.
type MatchConfidence string

const (
	ConfidenceExact     MatchConfidence = "exact"
	ConfidencePartial   MatchConfidence = "partial"
	ConfidenceUnmatched MatchConfidence = "unmatched"
)

// SnapshotStatus reports whether the upstream room existed when scraped.
type SnapshotStatus string

const (
	SnapshotOK       SnapshotStatus = "ok"
	SnapshotNotFound SnapshotStatus = "not_found"
)

// ScrapedPlayer is one player row captured from the upstream auction room.
// Immutable once part of a snapshot.
type ScrapedPlayer struct {
	FullName    string       `json:"fullName"`
	MLBTeam     string       `json:"mlbTeam"`
	Positions   []string     `json:"positions"`
	Status      PlayerStatus `json:"status"`
	WinningBid  *float64     `json:"winningBid,omitempty"`
	WinningTeam string       `json:"winningTeam,omitempty"`
	SourceID    string       `json:"sourceId,omitempty"`
}

// CatalogPlayer is a projections entry supplied by the catalog collaborator.
// Read-only to this service.
type CatalogPlayer struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Team           string   `json:"team"`
	Positions      []string `json:"positions"`
	ProjectedValue float64  `json:"projectedValue"`
	Tier           int      `json:"tier"` // 1 = best
}

// MatchResult pairs a scraped player with an optional catalog entry.
// Created fresh on every match pass and never mutated afterwards.
type MatchResult struct {
	Scraped          ScrapedPlayer   `json:"scraped"`
	Player           *CatalogPlayer  `json:"player,omitempty"`
	Confidence       MatchConfidence `json:"confidence"`
	InflationAmount  *float64        `json:"inflationAmount,omitempty"`
	InflationPercent *float64        `json:"inflationPercent,omitempty"`
}

// TeamSummary is one drafting team's roster state within a snapshot.
type TeamSummary struct {
	Name        string  `json:"name"`
	PlayerCount int     `json:"playerCount"`
	TotalSpent  float64 `json:"totalSpent"`
}

// CurrentAuction is the player on the block and the standing bid.
type CurrentAuction struct {
	PlayerName string  `json:"playerName"`
	CurrentBid float64 `json:"currentBid"`
}

// AuctionSnapshot is the full scraped state of one room at one instant.
// Owned by the cache once stored; readers treat it as immutable.
type AuctionSnapshot struct {
	RoomID          string          `json:"roomId"`
	Players         []ScrapedPlayer `json:"players"`
	Teams           []TeamSummary   `json:"teams,omitempty"`
	CurrentAuction  *CurrentAuction `json:"currentAuction,omitempty"`
	TotalMoneySpent float64         `json:"totalMoneySpent"`
	Status          SnapshotStatus  `json:"status"`
	CapturedAt      time.Time       `json:"capturedAt"`
}

// TierBucket aggregates drafted spend per projection tier (1 = best).
// Recomputed from scratch on every valuation pass.
type TierBucket struct {
	Tier                int     `json:"tier"`
	DraftedCount        int     `json:"draftedCount"`
	TotalProjectedValue float64 `json:"totalProjectedValue"`
	TotalActualSpent    float64 `json:"totalActualSpent"`
	InflationRate       float64 `json:"inflationRate"`
}

// ScarcityLevel classifies positional supply versus league-wide need.
type ScarcityLevel string

const (
	ScarcitySurplus  ScarcityLevel = "surplus"
	ScarcityNormal   ScarcityLevel = "normal"
	ScarcityModerate ScarcityLevel = "moderate"
	ScarcitySevere   ScarcityLevel = "severe"
)

// PositionalScarcity reports remaining supply against remaining need for one
// roster position.
type PositionalScarcity struct {
	Position            string        `json:"position"`
	QualityCount        int           `json:"qualityCount"`
	LeagueNeed          int           `json:"leagueNeed"`
	ScarcityRatio       float64       `json:"scarcityRatio"`
	ScarcityLevel       ScarcityLevel `json:"scarcityLevel"`
	InflationAdjustment float64       `json:"inflationAdjustment"`
}

// InflationResult is the primary valuation output consumed by presentation layers.
type InflationResult struct {
	OverallInflationRate    float64              `json:"overallInflationRate"`
	RemainingBudget         float64              `json:"remainingBudget"`
	RemainingProjectedValue float64              `json:"remainingProjectedValue"`
	BaseMultiplier          float64              `json:"baseMultiplier"`
	TierBuckets             []TierBucket         `json:"tierBuckets"`
	PositionalScarcity      []PositionalScarcity `json:"positionalScarcity,omitempty"`
}

// AdjustedPlayer is a catalog player with its market-adjusted value for the
// current auction state.
type AdjustedPlayer struct {
	Player        CatalogPlayer `json:"player"`
	Status        PlayerStatus  `json:"status"`
	AdjustedValue float64       `json:"adjustedValue"`
}

// LeagueConfig carries the roster settings the valuation engine needs.
type LeagueConfig struct {
	Teams         int            `json:"teams" yaml:"teams"`
	BudgetPerTeam float64        `json:"budgetPerTeam" yaml:"budget_per_team"`
	RosterSlots   map[string]int `json:"rosterSlots" yaml:"roster_slots"`
}

// TotalBudget is the league-wide auction budget.
func (c LeagueConfig) TotalBudget() float64 {
	return float64(c.Teams) * c.BudgetPerTeam
}

// Valid reports whether the config is usable for a valuation pass.
func (c LeagueConfig) Valid() bool {
	return c.Teams > 0 && c.BudgetPerTeam > 0
}
