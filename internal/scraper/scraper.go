// Package scraper defines the upstream auction-room collaborator. The actual
// DOM scraping happens in a separate service; this package only speaks to its
// JSON API.
package scraper

import (
	"context"

	"github.com/couchgm/auctionwatch/internal/models"
)

// Scraper fetches the current state of an upstream auction room. A room that
// does not exist is reported through the snapshot status, not an error;
// errors are reserved for transport-level failures (timeout, unreachable
// host, malformed response).
type Scraper interface {
	Scrape(ctx context.Context, roomID string) (*models.AuctionSnapshot, error)
}
