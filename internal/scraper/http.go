package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/couchgm/auctionwatch/internal/logger"
	"github.com/couchgm/auctionwatch/internal/models"
)

// HTTPScraper talks to the scraping service's JSON endpoint.
type HTTPScraper struct {
	baseURL string
	client  *http.Client
}

// NewHTTPScraper creates a scraper client with a hard per-request timeout.
func NewHTTPScraper(baseURL string, timeout time.Duration) *HTTPScraper {
	return &HTTPScraper{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Scrape fetches one room snapshot. A 404 maps to SnapshotNotFound; any other
// non-200 or transport problem is an error.
func (s *HTTPScraper) Scrape(ctx context.Context, roomID string) (*models.AuctionSnapshot, error) {
	u := fmt.Sprintf("%s/rooms/%s", s.baseURL, url.PathEscape(roomID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", roomID, err)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", roomID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &models.AuctionSnapshot{
			RoomID:     roomID,
			Status:     models.SnapshotNotFound,
			CapturedAt: time.Now(),
		}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape %s: upstream returned %s", roomID, resp.Status)
	}

	var snap models.AuctionSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("scrape %s: decode response: %w", roomID, err)
	}
	snap.RoomID = roomID
	snap.Status = models.SnapshotOK
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now()
	}

	logger.Debug("Scraped auction room", "room_id", roomID,
		"players", len(snap.Players), "duration_ms", time.Since(start).Milliseconds())
	return &snap, nil
}
