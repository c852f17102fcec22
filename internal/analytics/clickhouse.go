package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseRecorder implements Recorder on a ClickHouse cluster
type ClickHouseRecorder struct {
	conn driver.Conn
}

// NewClickHouseRecorder connects and ensures the sync-history table exists
func NewClickHouseRecorder(addr, database, username, password string) (*ClickHouseRecorder, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	r := &ClickHouseRecorder{conn: conn}
	if err := r.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return r, nil
}

func (r *ClickHouseRecorder) initSchema() error {
	ddl := `
		CREATE TABLE IF NOT EXISTS auction_syncs (
			sync_id String,
			room_id String,
			inflation_rate Float64,
			remaining_budget Float64,
			remaining_projected_value Float64,
			base_multiplier Float64,
			matched_count Int32,
			unmatched_count Int32,
			recorded_at DateTime
		)
		ENGINE = MergeTree()
		ORDER BY (room_id, recorded_at)
		TTL recorded_at + INTERVAL 90 DAY
	`
	if err := r.conn.Exec(context.Background(), ddl); err != nil {
		return fmt.Errorf("failed to create auction_syncs table: %w", err)
	}
	return nil
}

// RecordSync writes one valuation run.
func (r *ClickHouseRecorder) RecordSync(ctx context.Context, rec SyncRecord) error {
	query := `
		INSERT INTO auction_syncs (
			sync_id, room_id, inflation_rate, remaining_budget,
			remaining_projected_value, base_multiplier,
			matched_count, unmatched_count, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	err := r.conn.Exec(ctx, query,
		rec.SyncID,
		rec.RoomID,
		rec.Inflation.OverallInflationRate,
		rec.Inflation.RemainingBudget,
		rec.Inflation.RemainingProjectedValue,
		rec.Inflation.BaseMultiplier,
		int32(rec.MatchedOK),
		int32(rec.Unmatched),
		rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync %s: %w", rec.SyncID, err)
	}
	return nil
}

// InflationHistory returns a room's inflation observations since the given time.
func (r *ClickHouseRecorder) InflationHistory(ctx context.Context, roomID string, since time.Time) ([]InflationPoint, error) {
	query := `
		SELECT sync_id, inflation_rate, recorded_at
		FROM auction_syncs
		WHERE room_id = $1 AND recorded_at >= $2
		ORDER BY recorded_at
	`
	rows, err := r.conn.Query(ctx, query, roomID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []InflationPoint
	for rows.Next() {
		var p InflationPoint
		if err := rows.Scan(&p.SyncID, &p.InflationRate, &p.RecordedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

// Close closes the ClickHouse connection
func (r *ClickHouseRecorder) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
