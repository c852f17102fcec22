package projections

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/couchgm/auctionwatch/internal/models"
)

// PostgresCatalog implements Catalog using PostgreSQL
type PostgresCatalog struct {
	db *sql.DB
}

// NewPostgresCatalog creates a new PostgreSQL-backed catalog
func NewPostgresCatalog(connString string) (*PostgresCatalog, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	// Retry the initial ping to ride out DNS propagation in Kubernetes.
	maxRetries := 5
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		lastErr = db.PingContext(ctx)
		cancel()
		if lastErr == nil {
			break
		}
		if i < maxRetries-1 {
			time.Sleep(5 * time.Second)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("failed to ping postgres after %d retries: %w", maxRetries, lastErr)
	}

	c := &PostgresCatalog{db: db}
	if err := c.initSchema(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *PostgresCatalog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS catalog_players (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		team TEXT NOT NULL,
		positions JSONB NOT NULL DEFAULT '[]'::jsonb,
		projected_value DOUBLE PRECISION NOT NULL,
		tier INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_catalog_players_name ON catalog_players(name);
	CREATE INDEX IF NOT EXISTS idx_catalog_players_tier ON catalog_players(tier);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return nil
}

func (c *PostgresCatalog) Players(ctx context.Context) ([]models.CatalogPlayer, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, team, positions, projected_value, tier
		FROM catalog_players ORDER BY projected_value DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog players: %w", err)
	}
	defer rows.Close()

	var out []models.CatalogPlayer
	for rows.Next() {
		var p models.CatalogPlayer
		var positions []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Team, &positions, &p.ProjectedValue, &p.Tier); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(positions, &p.Positions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal positions for %s: %w", p.Name, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *PostgresCatalog) Player(ctx context.Context, id string) (*models.CatalogPlayer, error) {
	var p models.CatalogPlayer
	var positions []byte
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, team, positions, projected_value, tier
		FROM catalog_players WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Team, &positions, &p.ProjectedValue, &p.Tier)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("player not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(positions, &p.Positions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal positions for %s: %w", p.Name, err)
	}
	return &p, nil
}

func (c *PostgresCatalog) UpsertPlayers(ctx context.Context, players []models.CatalogPlayer) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_players (id, name, team, positions, projected_value, tier, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			team = EXCLUDED.team,
			positions = EXCLUDED.positions,
			projected_value = EXCLUDED.projected_value,
			tier = EXCLUDED.tier,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range players {
		if p.Name == "" {
			return fmt.Errorf("catalog player missing name")
		}
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		positions, err := json.Marshal(p.Positions)
		if err != nil {
			return fmt.Errorf("failed to marshal positions for %s: %w", p.Name, err)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Team, positions, p.ProjectedValue, p.Tier); err != nil {
			return fmt.Errorf("failed to upsert player %s: %w", p.Name, err)
		}
	}

	return tx.Commit()
}

func (c *PostgresCatalog) Close() error {
	return c.db.Close()
}
