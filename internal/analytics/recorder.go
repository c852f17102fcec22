// Package analytics records valuation history for trend queries. Recording
// is best-effort: the sync path never fails because analytics is down.
package analytics

import (
	"context"
	"time"

	"github.com/couchgm/auctionwatch/internal/models"
)

// SyncRecord is one persisted valuation run.
type SyncRecord struct {
	SyncID     string
	RoomID     string
	Inflation  models.InflationResult
	MatchedOK  int
	Unmatched  int
	RecordedAt time.Time
}

// InflationPoint is one historical observation of a room's market rate.
type InflationPoint struct {
	SyncID        string
	InflationRate float64
	RecordedAt    time.Time
}

// Recorder persists valuation runs
type Recorder interface {
	RecordSync(ctx context.Context, rec SyncRecord) error
	InflationHistory(ctx context.Context, roomID string, since time.Time) ([]InflationPoint, error)
	Close() error
}

// NoopRecorder discards everything. Used when analytics is not configured.
type NoopRecorder struct{}

func (NoopRecorder) RecordSync(ctx context.Context, rec SyncRecord) error {
	return nil
}

func (NoopRecorder) InflationHistory(ctx context.Context, roomID string, since time.Time) ([]InflationPoint, error) {
	return nil, nil
}

func (NoopRecorder) Close() error {
	return nil
}
