package cache

import (
	"context"
	"testing"
	"time"

	"github.com/couchgm/auctionwatch/internal/models"
	"github.com/couchgm/auctionwatch/internal/store"
)

func snapshot(roomID string) models.AuctionSnapshot {
	return models.AuctionSnapshot{
		RoomID: roomID,
		Status: models.SnapshotOK,
		Players: []models.ScrapedPlayer{
			{FullName: "Mike Trout", MLBTeam: "LAA", Status: models.StatusAvailable},
		},
		TotalMoneySpent: 120,
	}
}

func newTestCache(ttl time.Duration) (*AuctionCache, *time.Time) {
	s := store.NewMemoryStore()
	c := New(s, ttl)

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	c.SetNow(func() time.Time { return now })
	s.SetNow(func() time.Time { return now })
	return c, &now
}

func TestGetMissingRoom(t *testing.T) {
	c, _ := newTestCache(5 * time.Minute)

	entry, err := c.Get(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry != nil {
		t.Fatal("missing room should return nil entry")
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(5 * time.Minute)
	ctx := context.Background()

	snap := snapshot("1362")
	if _, err := c.Set(ctx, "1362", snap); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	entry, err := c.Get(ctx, "1362")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry == nil {
		t.Fatal("entry should exist after Set")
	}
	if entry.Snapshot.RoomID != "1362" || len(entry.Snapshot.Players) != 1 {
		t.Fatalf("snapshot did not round trip: %+v", entry.Snapshot)
	}
	if entry.IsStale(entry.FetchedAt) {
		t.Fatal("entry should be fresh immediately after write")
	}
	if got := entry.ExpiresAt.Sub(entry.FetchedAt); got != 5*time.Minute {
		t.Fatalf("expiry should derive from the write time, got window %v", got)
	}
}

func TestStalenessWithInjectedClock(t *testing.T) {
	c, now := newTestCache(5 * time.Minute)
	ctx := context.Background()

	c.Set(ctx, "1362", snapshot("1362"))

	*now = now.Add(6 * time.Minute)

	entry, err := c.Get(ctx, "1362")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry == nil {
		t.Fatal("stale entries are returned, not suppressed")
	}
	if !entry.IsStale(*now) {
		t.Fatal("entry should be stale once expiresAt has passed")
	}
}

func TestSetReplacesEntry(t *testing.T) {
	c, now := newTestCache(5 * time.Minute)
	ctx := context.Background()

	c.Set(ctx, "1362", snapshot("1362"))
	first, _ := c.Get(ctx, "1362")

	*now = now.Add(2 * time.Minute)
	updated := snapshot("1362")
	updated.TotalMoneySpent = 300
	c.Set(ctx, "1362", updated)

	second, _ := c.Get(ctx, "1362")
	if second.Snapshot.TotalMoneySpent != 300 {
		t.Fatal("second write should fully replace the entry")
	}
	if !second.FetchedAt.After(first.FetchedAt) {
		t.Fatal("replacement entry should carry its own write time")
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := newTestCache(5 * time.Minute)
	ctx := context.Background()

	c.Set(ctx, "1362", snapshot("1362"))
	if err := c.Invalidate(ctx, "1362"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	entry, _ := c.Get(ctx, "1362")
	if entry != nil {
		t.Fatal("entry should be gone after invalidation")
	}
}

func TestStatus(t *testing.T) {
	c, now := newTestCache(5 * time.Minute)
	ctx := context.Background()

	st, err := c.Status(ctx, "1362")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Exists {
		t.Fatal("status should report absence")
	}

	c.Set(ctx, "1362", snapshot("1362"))
	*now = now.Add(2 * time.Minute)

	st, _ = c.Status(ctx, "1362")
	if !st.Exists || st.Expired {
		t.Fatalf("expected fresh existing entry, got %+v", st)
	}
	if st.AgeSeconds != 120 {
		t.Fatalf("expected age 120s, got %v", st.AgeSeconds)
	}
	if st.ExpiresInSeconds != 180 {
		t.Fatalf("expected 180s to expiry, got %v", st.ExpiresInSeconds)
	}

	*now = now.Add(4 * time.Minute)
	st, _ = c.Status(ctx, "1362")
	if !st.Expired {
		t.Fatal("status should report expiry")
	}
}

func TestSweepExpiredHonorsGrace(t *testing.T) {
	c, now := newTestCache(5 * time.Minute)
	ctx := context.Background()

	c.Set(ctx, "fresh", snapshot("fresh"))

	// This entry will be expired but within grace.
	c.Set(ctx, "recent", snapshot("recent"))

	// This one will be long expired.
	c.Set(ctx, "old", snapshot("old"))

	// fresh is written again later so it stays inside its TTL.
	*now = now.Add(10 * time.Minute)
	c.Set(ctx, "fresh", snapshot("fresh"))
	*now = now.Add(4 * time.Minute)

	// fresh: 4m old (fresh). recent/old: expired 9m ago, grace 10m keeps
	// them; grace 5m drops them.
	removed, err := c.SweepExpired(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if removed != 0 {
		t.Fatalf("nothing should be outside a 10m grace, removed %d", removed)
	}

	removed, err = c.SweepExpired(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}

	if entry, _ := c.Get(ctx, "fresh"); entry == nil {
		t.Fatal("sweep must never delete a fresh entry")
	}
}

func TestSweepConcurrentWithWrites(t *testing.T) {
	s := store.NewMemoryStore()
	c := New(s, time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			c.Set(context.Background(), "busy", snapshot("busy"))
		}
	}()

	for i := 0; i < 50; i++ {
		if _, err := c.SweepExpired(context.Background(), 0); err != nil {
			t.Fatalf("SweepExpired failed: %v", err)
		}
	}
	<-done
}
