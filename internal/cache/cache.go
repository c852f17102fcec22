// Package cache stores the most recent successful auction snapshot per room
// with explicit freshness accounting, independent of the coordinator's
// locking concerns.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/couchgm/auctionwatch/internal/logger"
	"github.com/couchgm/auctionwatch/internal/models"
	"github.com/couchgm/auctionwatch/internal/store"
)

// Entry wraps a snapshot with its freshness window. Entries are immutable:
// every write replaces the prior entry wholesale, so ExpiresAt always derives
// from the entry's own write time rather than a clock drifted across
// instances.
type Entry struct {
	Snapshot  models.AuctionSnapshot `json:"snapshot"`
	FetchedAt time.Time              `json:"fetchedAt"`
	ExpiresAt time.Time              `json:"expiresAt"`
}

// IsStale reports whether the entry's freshness window has passed at the
// given instant.
func (e *Entry) IsStale(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Status is the client-visible cache metadata for one room.
type Status struct {
	Exists           bool    `json:"exists"`
	Expired          bool    `json:"expired"`
	AgeSeconds       float64 `json:"ageSeconds"`
	ExpiresInSeconds float64 `json:"expiresInSeconds"`
}

// AuctionCache is the TTL-keyed snapshot store, backed by the shared store so
// all instances see the same entries.
type AuctionCache struct {
	store   store.SharedStore
	ttl     time.Duration
	nowFunc func() time.Time
}

// New creates a cache writing entries with the given freshness TTL.
func New(s store.SharedStore, ttl time.Duration) *AuctionCache {
	return &AuctionCache{
		store:   s,
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// SetNow overrides the cache clock. Test hook.
func (c *AuctionCache) SetNow(now func() time.Time) {
	c.nowFunc = now
}

// TTL returns the configured freshness window.
func (c *AuctionCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached entry for a room, or nil when absent. Staleness is
// the caller's decision: stale entries are returned, not suppressed.
func (c *AuctionCache) Get(ctx context.Context, roomID string) (*Entry, error) {
	var entry Entry
	found, err := c.store.GetJSON(ctx, store.CacheKey(roomID), &entry)
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", roomID, err)
	}
	if !found {
		return nil, nil
	}
	return &entry, nil
}

// Set stores a fresh entry for the room, replacing any prior one. The expiry
// derives from this write's own timestamp.
func (c *AuctionCache) Set(ctx context.Context, roomID string, snap models.AuctionSnapshot) (*Entry, error) {
	now := c.nowFunc()
	entry := Entry{
		Snapshot:  snap,
		FetchedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	if err := c.store.SetJSON(ctx, store.CacheKey(roomID), entry, c.backstop()); err != nil {
		return nil, fmt.Errorf("cache set %s: %w", roomID, err)
	}
	return &entry, nil
}

// backstop is the hard store-level expiry, well past the freshness TTL so
// deliberately-stale reads stay possible until the sweep runs.
func (c *AuctionCache) backstop() time.Duration {
	return 4 * c.ttl
}

// Invalidate removes the room's entry, for callers that know the data is
// stale (a user forcing a refresh).
func (c *AuctionCache) Invalidate(ctx context.Context, roomID string) error {
	if err := c.store.Delete(ctx, store.CacheKey(roomID)); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", roomID, err)
	}
	return nil
}

// Status reports the room entry's existence and freshness without touching it.
func (c *AuctionCache) Status(ctx context.Context, roomID string) (Status, error) {
	entry, err := c.Get(ctx, roomID)
	if err != nil {
		return Status{}, err
	}
	if entry == nil {
		return Status{}, nil
	}

	now := c.nowFunc()
	return Status{
		Exists:           true,
		Expired:          entry.IsStale(now),
		AgeSeconds:       now.Sub(entry.FetchedAt).Seconds(),
		ExpiresInSeconds: entry.ExpiresAt.Sub(now).Seconds(),
	}, nil
}

// SweepExpired deletes entries expired by more than the grace window, to
// bound memory in the shared store. Fresh entries are never deleted, and the
// sweep tolerates concurrent reads and writes; exclusion is per entry, never
// a global pause.
func (c *AuctionCache) SweepExpired(ctx context.Context, grace time.Duration) (int, error) {
	keys, err := c.store.Keys(ctx, store.CachePrefix)
	if err != nil {
		return 0, fmt.Errorf("cache sweep: %w", err)
	}

	now := c.nowFunc()
	removed := 0
	for _, key := range keys {
		var entry Entry
		found, err := c.store.GetJSON(ctx, key, &entry)
		if err != nil || !found {
			continue
		}
		if now.After(entry.ExpiresAt.Add(grace)) {
			if err := c.store.Delete(ctx, key); err != nil {
				logger.Warn("Cache sweep failed to delete entry", "key", key, "error", err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		logger.Info("Swept expired auction cache entries", "removed", removed)
	}
	return removed, nil
}
