package scraper

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchgm/auctionwatch/internal/models"
)

// Mock is a scripted scraper for development and tests. It counts calls and
// can hold each scrape open for a configurable delay, which is how the
// coordinator's dedup behavior gets exercised.
type Mock struct {
	mu        sync.RWMutex
	snapshots map[string]models.AuctionSnapshot
	errs      map[string]error
	delay     time.Duration
	calls     atomic.Int64
}

// NewMock creates an empty mock scraper.
func NewMock() *Mock {
	return &Mock{
		snapshots: make(map[string]models.AuctionSnapshot),
		errs:      make(map[string]error),
	}
}

// SetSnapshot scripts the snapshot returned for a room.
func (m *Mock) SetSnapshot(roomID string, snap models.AuctionSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[roomID] = snap
}

// SetError scripts a transport failure for a room.
func (m *Mock) SetError(roomID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[roomID] = err
}

// SetDelay makes every scrape take at least d.
func (m *Mock) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls reports how many scrapes have been performed.
func (m *Mock) Calls() int64 {
	return m.calls.Load()
}

// Scrape returns the scripted snapshot, error, or a not-found snapshot for
// unscripted rooms.
func (m *Mock) Scrape(ctx context.Context, roomID string) (*models.AuctionSnapshot, error) {
	m.calls.Add(1)

	m.mu.RLock()
	delay := m.delay
	snap, hasSnap := m.snapshots[roomID]
	err, hasErr := m.errs[roomID]
	m.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if hasErr {
		return nil, err
	}
	if !hasSnap {
		return &models.AuctionSnapshot{
			RoomID:     roomID,
			Status:     models.SnapshotNotFound,
			CapturedAt: time.Now(),
		}, nil
	}

	out := snap
	out.RoomID = roomID
	if out.Status == "" {
		out.Status = models.SnapshotOK
	}
	if out.CapturedAt.IsZero() {
		out.CapturedAt = time.Now()
	}
	return &out, nil
}
