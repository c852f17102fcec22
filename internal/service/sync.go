// Package service is the orchestration layer behind the HTTP handlers: it
// fetches auction state through the coordinator, matches it against the
// projection catalog, runs the valuation engine, and fans results out to
// subscribers and analytics.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/couchgm/auctionwatch/internal/analytics"
	"github.com/couchgm/auctionwatch/internal/cache"
	"github.com/couchgm/auctionwatch/internal/coordinator"
	"github.com/couchgm/auctionwatch/internal/logger"
	"github.com/couchgm/auctionwatch/internal/models"
	"github.com/couchgm/auctionwatch/internal/projections"
	"github.com/couchgm/auctionwatch/internal/pubsub"
	"github.com/couchgm/auctionwatch/internal/valuation"
)

var (
	// ErrInvalidInput marks requests rejected before any I/O happens.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRoomNotFound means the upstream site has no such auction room.
	ErrRoomNotFound = errors.New("auction room not found")
	// ErrUpstreamUnavailable wraps transport failures against the draft site.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Service wires the sync pipeline together. All collaborators are injected.
type Service struct {
	coord    *coordinator.Coordinator
	cache    *cache.AuctionCache
	catalog  projections.Catalog
	engine   *valuation.Engine
	events   *pubsub.PubSub
	recorder analytics.Recorder
	league   models.LeagueConfig
}

// New creates a Service. The recorder may be analytics.NoopRecorder{}.
func New(
	coord *coordinator.Coordinator,
	ac *cache.AuctionCache,
	catalog projections.Catalog,
	engine *valuation.Engine,
	events *pubsub.PubSub,
	recorder analytics.Recorder,
	league models.LeagueConfig,
) (*Service, error) {
	if !league.Valid() {
		return nil, fmt.Errorf("%w: league needs positive team count and budget", ErrInvalidInput)
	}
	return &Service{
		coord:    coord,
		cache:    ac,
		catalog:  catalog,
		engine:   engine,
		events:   events,
		recorder: recorder,
		league:   league,
	}, nil
}

// SyncResult is one complete valuation run for a room.
type SyncResult struct {
	SyncID    string                  `json:"syncId"`
	RoomID    string                  `json:"roomId"`
	FetchedAt time.Time               `json:"fetchedAt"`
	ExpiresAt time.Time               `json:"expiresAt"`
	Snapshot  models.AuctionSnapshot  `json:"snapshot"`
	Matched   []models.MatchResult    `json:"matched"`
	Unmatched []models.MatchResult    `json:"unmatched,omitempty"`
	Inflation models.InflationResult  `json:"inflation"`
	Players   []models.AdjustedPlayer `json:"players"`
}

// GetAuction returns the room's snapshot, serving from cache when fresh.
func (s *Service) GetAuction(ctx context.Context, roomID string, forceRefresh bool) (*cache.Entry, error) {
	roomID, err := validRoomID(roomID)
	if err != nil {
		return nil, err
	}

	entry, err := s.coord.GetAuction(ctx, roomID, coordinator.Options{ForceRefresh: forceRefresh})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if entry.Snapshot.Status == models.SnapshotNotFound {
		return nil, fmt.Errorf("%w: room %s", ErrRoomNotFound, roomID)
	}
	return entry, nil
}

// SyncAndValue fetches the room, matches it against the catalog, and runs the
// valuation engine. Subscriber and analytics fan-out is best-effort.
func (s *Service) SyncAndValue(ctx context.Context, roomID string, forceRefresh bool) (*SyncResult, error) {
	entry, err := s.GetAuction(ctx, roomID, forceRefresh)
	if err != nil {
		return nil, err
	}
	roomID = strings.TrimSpace(roomID)

	players, err := s.catalog.Players(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load projection catalog: %w", err)
	}

	matches, result := s.engine.RunSnapshot(&entry.Snapshot, players, s.league)

	out := &SyncResult{
		SyncID:    uuid.New().String(),
		RoomID:    roomID,
		FetchedAt: entry.FetchedAt,
		ExpiresAt: entry.ExpiresAt,
		Snapshot:  entry.Snapshot,
		Matched:   matches.Matched,
		Unmatched: matches.Unmatched,
		Inflation: result.Inflation,
		Players:   result.Players,
	}

	s.publish(pubsub.Event{
		Type:   pubsub.EventAuctionSynced,
		RoomID: roomID,
		Payload: map[string]interface{}{
			"syncId":    out.SyncID,
			"fetchedAt": out.FetchedAt,
			"players":   len(out.Snapshot.Players),
		},
	})

	s.publish(pubsub.Event{
		Type:   pubsub.EventValuationUpdated,
		RoomID: roomID,
		Payload: map[string]interface{}{
			"syncId":        out.SyncID,
			"inflationRate": out.Inflation.OverallInflationRate,
			"matched":       len(out.Matched),
			"unmatched":     len(out.Unmatched),
		},
	})

	s.record(ctx, analytics.SyncRecord{
		SyncID:     out.SyncID,
		RoomID:     roomID,
		Inflation:  out.Inflation,
		MatchedOK:  len(out.Matched),
		Unmatched:  len(out.Unmatched),
		RecordedAt: time.Now().UTC(),
	})

	logger.Info("Sync complete",
		"room_id", roomID,
		"sync_id", out.SyncID,
		"matched", len(out.Matched),
		"unmatched", len(out.Unmatched),
		"inflation_rate", out.Inflation.OverallInflationRate)

	return out, nil
}

// CacheStatus reports the room's cache entry without triggering a scrape.
func (s *Service) CacheStatus(ctx context.Context, roomID string) (cache.Status, error) {
	roomID, err := validRoomID(roomID)
	if err != nil {
		return cache.Status{}, err
	}
	return s.cache.Status(ctx, roomID)
}

// Invalidate drops the room's cache entry and notifies subscribers.
func (s *Service) Invalidate(ctx context.Context, roomID string) error {
	roomID, err := validRoomID(roomID)
	if err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, roomID); err != nil {
		return err
	}
	s.publish(pubsub.Event{Type: pubsub.EventAuctionInvalidated, RoomID: roomID})
	return nil
}

// InflationHistory returns the room's recorded inflation trend.
func (s *Service) InflationHistory(ctx context.Context, roomID string, since time.Time) ([]analytics.InflationPoint, error) {
	roomID, err := validRoomID(roomID)
	if err != nil {
		return nil, err
	}
	return s.recorder.InflationHistory(ctx, roomID, since)
}

// Events exposes the subscriber hub for SSE handlers.
func (s *Service) Events() *pubsub.PubSub {
	return s.events
}

// League returns the configured league settings.
func (s *Service) League() models.LeagueConfig {
	return s.league
}

func (s *Service) publish(event pubsub.Event) {
	if s.events != nil {
		s.events.Publish(event)
	}
}

func (s *Service) record(ctx context.Context, rec analytics.SyncRecord) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordSync(ctx, rec); err != nil {
		logger.Warn("Failed to record sync analytics", "room_id", rec.RoomID, "error", err)
	}
}

// validRoomID trims and validates before any I/O.
func validRoomID(roomID string) (string, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return "", fmt.Errorf("%w: room id is required", ErrInvalidInput)
	}
	if strings.ContainsAny(roomID, ":/ ") {
		return "", fmt.Errorf("%w: malformed room id %q", ErrInvalidInput, roomID)
	}
	return roomID, nil
}
