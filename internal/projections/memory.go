package projections

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/couchgm/auctionwatch/internal/models"
)

// MemoryCatalog implements Catalog in process memory
type MemoryCatalog struct {
	mu      sync.RWMutex
	players map[string]models.CatalogPlayer
	order   []string
}

// NewMemoryCatalog creates an empty in-memory catalog
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{players: make(map[string]models.CatalogPlayer)}
}

// NewMemoryCatalogWith creates an in-memory catalog pre-loaded with players.
func NewMemoryCatalogWith(players []models.CatalogPlayer) (*MemoryCatalog, error) {
	c := NewMemoryCatalog()
	if err := c.UpsertPlayers(context.Background(), players); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *MemoryCatalog) Players(ctx context.Context) ([]models.CatalogPlayer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.CatalogPlayer, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.players[id])
	}
	return out, nil
}

func (c *MemoryCatalog) Player(ctx context.Context, id string) (*models.CatalogPlayer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.players[id]
	if !ok {
		return nil, fmt.Errorf("player not found: %s", id)
	}
	return &p, nil
}

func (c *MemoryCatalog) UpsertPlayers(ctx context.Context, players []models.CatalogPlayer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range players {
		if p.Name == "" {
			return fmt.Errorf("catalog player missing name")
		}
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if _, exists := c.players[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.players[p.ID] = p
	}
	return nil
}

func (c *MemoryCatalog) Close() error {
	return nil
}
