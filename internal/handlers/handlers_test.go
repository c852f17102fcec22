package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchgm/auctionwatch/internal/analytics"
	"github.com/couchgm/auctionwatch/internal/cache"
	"github.com/couchgm/auctionwatch/internal/coordinator"
	"github.com/couchgm/auctionwatch/internal/models"
	"github.com/couchgm/auctionwatch/internal/projections"
	"github.com/couchgm/auctionwatch/internal/pubsub"
	"github.com/couchgm/auctionwatch/internal/scraper"
	"github.com/couchgm/auctionwatch/internal/service"
	"github.com/couchgm/auctionwatch/internal/store"
	"github.com/couchgm/auctionwatch/internal/valuation"
)

func bid(v float64) *float64 { return &v }

func newTestHandlers(t *testing.T) (*APIHandlers, *scraper.Mock) {
	t.Helper()

	s := store.NewMemoryStore()
	ac := cache.New(s, 5*time.Minute)
	mock := scraper.NewMock()
	coord := coordinator.New(s, ac, mock, coordinator.Config{
		LockTTL:       time.Minute,
		PollInterval:  10 * time.Millisecond,
		MaxPolls:      5,
		ScrapeTimeout: 5 * time.Second,
	})

	catalog, err := projections.NewMemoryCatalogWith([]models.CatalogPlayer{
		{ID: "p1", Name: "Bobby Witt Jr.", Team: "KC", Positions: []string{"SS"}, ProjectedValue: 40, Tier: 1},
		{ID: "p2", Name: "Logan Webb", Team: "SF", Positions: []string{"SP"}, ProjectedValue: 20, Tier: 3},
	})
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}

	league := models.LeagueConfig{Teams: 12, BudgetPerTeam: 260}
	svc, err := service.New(coord, ac, catalog, valuation.NewEngine(valuation.DefaultScarcityPolicy()), pubsub.New(), analytics.NoopRecorder{}, league)
	if err != nil {
		t.Fatalf("Failed to build service: %v", err)
	}

	return NewAPIHandlers(svc), mock
}

func okSnapshot(roomID string) models.AuctionSnapshot {
	return models.AuctionSnapshot{
		RoomID: roomID,
		Players: []models.ScrapedPlayer{
			{FullName: "Bobby Witt Jr.", MLBTeam: "KC", Positions: []string{"SS"}, Status: models.StatusDrafted, WinningBid: bid(50), WinningTeam: "Team A"},
			{FullName: "Logan Webb", MLBTeam: "SF", Positions: []string{"SP"}, Status: models.StatusAvailable},
		},
		TotalMoneySpent: 50,
		Status:          models.SnapshotOK,
		CapturedAt:      time.Now().UTC(),
	}
}

func TestGetAuctionHandler(t *testing.T) {
	h, mock := newTestHandlers(t)
	mock.SetSnapshot("1362", okSnapshot("1362"))

	req := httptest.NewRequest(http.MethodGet, "/api/auction?room=1362", nil)
	rec := httptest.NewRecorder()
	h.GetAuction(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Snapshot models.AuctionSnapshot `json:"snapshot"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Snapshot.RoomID != "1362" {
		t.Errorf("Expected room 1362, got %s", body.Snapshot.RoomID)
	}
}

func TestGetAuctionMissingRoom(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auction", nil)
	rec := httptest.NewRecorder()
	h.GetAuction(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing room, got %d", rec.Code)
	}
}

func TestGetAuctionNotFound(t *testing.T) {
	h, mock := newTestHandlers(t)
	mock.SetSnapshot("9999", models.AuctionSnapshot{RoomID: "9999", Status: models.SnapshotNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/auction?room=9999", nil)
	rec := httptest.NewRecorder()
	h.GetAuction(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestGetAuctionUpstreamDown(t *testing.T) {
	h, mock := newTestHandlers(t)
	mock.SetError("1362", errors.New("connection refused"))

	req := httptest.NewRequest(http.MethodGet, "/api/auction?room=1362", nil)
	rec := httptest.NewRecorder()
	h.GetAuction(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", rec.Code)
	}
}

func TestSyncAuctionHandler(t *testing.T) {
	h, mock := newTestHandlers(t)
	mock.SetSnapshot("1362", okSnapshot("1362"))

	payload, _ := json.Marshal(map[string]interface{}{"roomId": "1362"})
	req := httptest.NewRequest(http.MethodPost, "/api/auction/sync", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.SyncAuction(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result service.SyncResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode sync result: %v", err)
	}
	if result.SyncID == "" {
		t.Error("Expected a sync id")
	}
	if len(result.Players) != 2 {
		t.Errorf("Expected 2 adjusted players, got %d", len(result.Players))
	}
}

func TestSyncAuctionRejectsGet(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auction/sync", nil)
	rec := httptest.NewRecorder()
	h.SyncAuction(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestCacheStatusAndInvalidate(t *testing.T) {
	h, mock := newTestHandlers(t)
	mock.SetSnapshot("1362", okSnapshot("1362"))

	// Populate the cache.
	req := httptest.NewRequest(http.MethodGet, "/api/auction?room=1362", nil)
	h.GetAuction(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/auction/cache?room=1362", nil)
	rec := httptest.NewRecorder()
	h.CacheStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var status cache.Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if !status.Exists {
		t.Fatal("Expected cache entry to exist")
	}

	payload, _ := json.Marshal(map[string]string{"roomId": "1362"})
	req = httptest.NewRequest(http.MethodPost, "/api/auction/invalidate", bytes.NewReader(payload))
	rec = httptest.NewRecorder()
	h.InvalidateCache(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/auction/cache?room=1362", nil)
	rec = httptest.NewRecorder()
	h.CacheStatus(rec, req)
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.Exists {
		t.Error("Expected cache entry gone after invalidation")
	}
}

func TestInflationHistoryBadSince(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auction/history?room=1362&since=yesterday", nil)
	rec := httptest.NewRecorder()
	h.InflationHistory(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad since, got %d", rec.Code)
	}
}

func TestLeagueHandler(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.League(rec, httptest.NewRequest(http.MethodGet, "/api/league", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var league models.LeagueConfig
	if err := json.NewDecoder(rec.Body).Decode(&league); err != nil {
		t.Fatalf("Failed to decode league: %v", err)
	}
	if league.Teams != 12 {
		t.Errorf("Expected 12 teams, got %d", league.Teams)
	}
}
