package projections

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/couchgm/auctionwatch/internal/models"
)

// SQLiteCatalog implements Catalog using SQLite
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog creates a new SQLite-backed catalog
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	c := &SQLiteCatalog{db: db}
	if err := c.initSchema(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCatalog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS catalog_players (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		team TEXT NOT NULL,
		positions TEXT NOT NULL,
		projected_value REAL NOT NULL,
		tier INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_catalog_players_name ON catalog_players(name);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) Players(ctx context.Context) ([]models.CatalogPlayer, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, team, positions, projected_value, tier
		FROM catalog_players ORDER BY projected_value DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog players: %w", err)
	}
	defer rows.Close()

	var out []models.CatalogPlayer
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *SQLiteCatalog) Player(ctx context.Context, id string) (*models.CatalogPlayer, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, name, team, positions, projected_value, tier
		FROM catalog_players WHERE id = ?`, id)

	p, err := scanPlayer(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("player not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *SQLiteCatalog) UpsertPlayers(ctx context.Context, players []models.CatalogPlayer) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_players (id, name, team, positions, projected_value, tier)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			team = excluded.team,
			positions = excluded.positions,
			projected_value = excluded.projected_value,
			tier = excluded.tier`)
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
		if _, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Team, string(positions), p.ProjectedValue, p.Tier); err != nil {
			return fmt.Errorf("failed to upsert player %s: %w", p.Name, err)
		}
	}

	return tx.Commit()
}

func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPlayer(s scanner) (models.CatalogPlayer, error) {
	var p models.CatalogPlayer
	var positions string
	if err := s.Scan(&p.ID, &p.Name, &p.Team, &positions, &p.ProjectedValue, &p.Tier); err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(positions), &p.Positions); err != nil {
		return p, fmt.Errorf("failed to unmarshal positions for %s: %w", p.Name, err)
	}
	return p, nil
}
