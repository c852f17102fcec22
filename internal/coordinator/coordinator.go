// Package coordinator guarantees at most one in-flight upstream scrape per
// room key across the whole process group. Concurrent local callers join the
// in-flight result; other instances are held off by a best-effort advisory
// lock in the shared store. The lock is a stampede damper, not consensus:
// when in doubt the coordinator proceeds, because a duplicate scrape is
// wasteful but never unsafe.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/couchgm/auctionwatch/internal/cache"
	"github.com/couchgm/auctionwatch/internal/logger"
	"github.com/couchgm/auctionwatch/internal/models"
	"github.com/couchgm/auctionwatch/internal/scraper"
	"github.com/couchgm/auctionwatch/internal/store"
	"github.com/couchgm/auctionwatch/internal/valuation"
)

// Config holds the coordinator's tunables. TTLs are configuration, not
// protocol.
type Config struct {
	// LockTTL is the distributed lock's safety-net expiry, independent of
	// how long a scrape actually takes.
	LockTTL time.Duration
	// PollInterval and MaxPolls bound the wait on a remote lock holder.
	PollInterval time.Duration
	MaxPolls     int
	// ScrapeTimeout caps one upstream scrape.
	ScrapeTimeout time.Duration
}

// DefaultConfig returns the conventional tunables: 60s lock safety net,
// half-second polls for up to 20 ticks, 30s scrape budget.
func DefaultConfig() Config {
	return Config{
		LockTTL:       60 * time.Second,
		PollInterval:  500 * time.Millisecond,
		MaxPolls:      20,
		ScrapeTimeout: 30 * time.Second,
	}
}

// Options modify one GetAuction call.
type Options struct {
	// ForceRefresh skips the cache fast path entirely.
	ForceRefresh bool
	// StaleBudget extends the fast path: an entry expired by no more than
	// this much is still acceptable to the caller.
	StaleBudget time.Duration
}

// Coordinator deduplicates concurrent fetches per room, first through a local
// in-flight map, then through the shared advisory lock. All state is
// constructor-injected; there is no package-level map, so instances are
// independently testable and drained at shutdown.
type Coordinator struct {
	store   store.SharedStore
	cache   *cache.AuctionCache
	scraper scraper.Scraper
	cfg     Config
	nowFunc func() time.Time

	mu       sync.Mutex
	inflight map[string]*inflightScrape
}

// inflightScrape is the shared future every local caller of one room joins.
// done is closed exactly once, after entry/err are set.
type inflightScrape struct {
	done  chan struct{}
	entry *cache.Entry
	err   error
}

// New creates a coordinator.
func New(s store.SharedStore, c *cache.AuctionCache, sc scraper.Scraper, cfg Config) *Coordinator {
	return &Coordinator{
		store:    s,
		cache:    c,
		scraper:  sc,
		cfg:      cfg,
		nowFunc:  time.Now,
		inflight: make(map[string]*inflightScrape),
	}
}

// SetNow overrides the coordinator clock. Test hook.
func (c *Coordinator) SetNow(now func() time.Time) {
	c.nowFunc = now
}

// GetAuction returns the room's snapshot entry, scraping upstream at most
// once per process group when the cache cannot serve it. Callers arriving
// while a scrape is in flight all observe the same resulting entry. A caller
// whose context ends while waiting detaches; the scrape itself keeps running
// for the remaining waiters.
func (c *Coordinator) GetAuction(ctx context.Context, roomID string, opts Options) (*cache.Entry, error) {
	if !opts.ForceRefresh {
		entry, err := c.cache.Get(ctx, roomID)
		if err != nil {
			// Shared-store trouble degrades to a fresh scrape, never a failure.
			logger.Warn("Cache read failed, proceeding to scrape", "room_id", roomID, "error", err)
		} else if entry != nil && c.acceptable(entry, opts.StaleBudget) {
			return entry, nil
		}
	}

	fl, started := c.join(roomID)
	if started {
		go c.run(roomID, fl)
	}

	select {
	case <-fl.done:
		return fl.entry, fl.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// acceptable applies the caller's staleness budget.
func (c *Coordinator) acceptable(entry *cache.Entry, budget time.Duration) bool {
	return !c.nowFunc().After(entry.ExpiresAt.Add(budget))
}

// join returns the room's in-flight future, creating it when this caller is
// first. The second result reports whether the caller must start the scrape.
func (c *Coordinator) join(roomID string) (*inflightScrape, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fl, ok := c.inflight[roomID]; ok {
		return fl, false
	}
	fl := &inflightScrape{done: make(chan struct{})}
	c.inflight[roomID] = fl
	return fl, true
}

// run performs the cross-instance part of the protocol and exactly one
// upstream scrape. It owns its own context so a cancelled caller cannot kill
// the scrape other waiters still need, and its cleanup runs on every exit
// path so neither the in-flight entry nor the distributed lock leaks.
func (c *Coordinator) run(roomID string, fl *inflightScrape) {
	budget := c.cfg.ScrapeTimeout + time.Duration(c.cfg.MaxPolls)*c.cfg.PollInterval
	ctx, cancel := context.WithTimeout(context.Background(), budget)

	defer func() {
		c.mu.Lock()
		delete(c.inflight, roomID)
		c.mu.Unlock()

		c.releaseLock(ctx, roomID)
		cancel()
		close(fl.done)
	}()

	// A remote holder means the result will land in the shared cache; wait
	// for it within the poll bounds instead of scraping in parallel.
	if c.lockHeldRemotely(ctx, roomID) {
		if entry := c.pollForResult(ctx, roomID); entry != nil {
			fl.entry = entry
			return
		}
		// Poll exhaustion: liveness over strict exclusivity.
		logger.Warn("Remote scrape lock outlasted the poll budget, scraping anyway", "room_id", roomID)
	}

	if acquired := c.acquireLock(ctx, roomID); !acquired {
		logger.Debug("Proceeding without the distributed lock", "room_id", roomID)
	}

	sctx, scancel := context.WithTimeout(ctx, c.cfg.ScrapeTimeout)
	snap, err := c.scraper.Scrape(sctx, roomID)
	scancel()
	if err != nil {
		// Propagated to every waiter; retrying is the caller's decision.
		fl.err = err
		return
	}

	if snap.Status != models.SnapshotOK {
		// Not-found is returned to waiters but never cached.
		now := c.nowFunc()
		fl.entry = &cache.Entry{Snapshot: *snap, FetchedAt: now, ExpiresAt: now}
		return
	}

	// Reconcile against the last cached snapshot so illegal status
	// transitions and phantom drafts never reach the shared cache. A prior
	// entry past its freshness window still counts as the last known state.
	if prev, perr := c.cache.Get(ctx, roomID); perr == nil && prev != nil {
		snap.Players = valuation.Reconcile(prev.Snapshot.Players, snap.Players)
	}

	entry, err := c.cache.Set(ctx, roomID, *snap)
	if err != nil {
		// The scrape succeeded; a cache write failure degrades to an
		// uncached result rather than an error.
		logger.Warn("Failed to store snapshot in shared cache", "room_id", roomID, "error", err)
		now := c.nowFunc()
		entry = &cache.Entry{Snapshot: *snap, FetchedAt: now, ExpiresAt: now.Add(c.cache.TTL())}
	}
	fl.entry = entry
}

// lockHeldRemotely probes the shared lock read-only. Store failures read as
// "not held".
func (c *Coordinator) lockHeldRemotely(ctx context.Context, roomID string) bool {
	held, err := c.store.Exists(ctx, store.LockKey(roomID))
	if err != nil {
		logger.Warn("Lock probe failed, treating as unlocked", "room_id", roomID, "error", err)
		return false
	}
	return held
}

// pollForResult waits for a remote holder's snapshot to land in the shared
// cache, re-checking the lock each tick. Returns nil on exhaustion or when
// the remote lock vanishes without a result.
func (c *Coordinator) pollForResult(ctx context.Context, roomID string) *cache.Entry {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for i := 0; i < c.cfg.MaxPolls; i++ {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}

		entry, err := c.cache.Get(ctx, roomID)
		if err == nil && entry != nil && !entry.IsStale(c.nowFunc()) {
			return entry
		}
		if !c.lockHeldRemotely(ctx, roomID) {
			// Holder released (or crashed past its TTL) without caching;
			// take over.
			return nil
		}
	}
	return nil
}

// acquireLock attempts the atomic set-if-absent with the safety-net TTL.
// Store failures read as "proceed unlocked".
func (c *Coordinator) acquireLock(ctx context.Context, roomID string) bool {
	payload := []byte(c.nowFunc().UTC().Format(time.RFC3339))
	acquired, err := c.store.SetIfAbsent(ctx, store.LockKey(roomID), payload, c.cfg.LockTTL)
	if err != nil {
		logger.Warn("Lock acquire failed, proceeding without it", "room_id", roomID, "error", err)
		return false
	}
	return acquired
}

// releaseLock is best-effort; a failure here is non-fatal because the TTL
// safety net reclaims the key anyway.
func (c *Coordinator) releaseLock(ctx context.Context, roomID string) {
	if err := c.store.Delete(ctx, store.LockKey(roomID)); err != nil {
		logger.Warn("Lock release failed, TTL will reclaim it", "room_id", roomID, "error", err)
	}
}

// InflightCount reports how many rooms currently have a scrape in flight.
func (c *Coordinator) InflightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}
