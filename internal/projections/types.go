package projections

import (
	"context"

	"github.com/couchgm/auctionwatch/internal/models"
)

// Catalog defines the interface for the projected-player store
type Catalog interface {
	Players(ctx context.Context) ([]models.CatalogPlayer, error)
	Player(ctx context.Context, id string) (*models.CatalogPlayer, error)
	UpsertPlayers(ctx context.Context, players []models.CatalogPlayer) error
	Close() error
}
