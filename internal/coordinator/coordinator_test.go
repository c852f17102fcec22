package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/couchgm/auctionwatch/internal/cache"
	"github.com/couchgm/auctionwatch/internal/models"
	"github.com/couchgm/auctionwatch/internal/scraper"
	"github.com/couchgm/auctionwatch/internal/store"
)

func testConfig() Config {
	return Config{
		LockTTL:       2 * time.Second,
		PollInterval:  20 * time.Millisecond,
		MaxPolls:      10,
		ScrapeTimeout: 5 * time.Second,
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *scraper.Mock, *store.MemoryStore, *cache.AuctionCache) {
	t.Helper()
	s := store.NewMemoryStore()
	ac := cache.New(s, 5*time.Minute)
	mock := scraper.NewMock()
	return New(s, ac, mock, testConfig()), mock, s, ac
}

func okSnapshot(roomID string) models.AuctionSnapshot {
	return models.AuctionSnapshot{
		RoomID: roomID,
		Players: []models.ScrapedPlayer{
			{FullName: "Bobby Witt Jr.", MLBTeam: "KC", Positions: []string{"SS"}, Status: models.StatusAvailable},
		},
		Status:     models.SnapshotOK,
		CapturedAt: time.Now().UTC(),
	}
}

func TestGetAuctionScrapesOnCacheMiss(t *testing.T) {
	coord, mock, _, _ := newTestCoordinator(t)
	mock.SetSnapshot("1362", okSnapshot("1362"))

	entry, err := coord.GetAuction(context.Background(), "1362", Options{})
	if err != nil {
		t.Fatalf("GetAuction failed: %v", err)
	}
	if entry.Snapshot.RoomID != "1362" {
		t.Errorf("Expected room 1362, got %s", entry.Snapshot.RoomID)
	}
	if got := mock.Calls(); got != 1 {
		t.Errorf("Expected 1 scrape, got %d", got)
	}
}

func TestGetAuctionServesFreshCacheWithoutScraping(t *testing.T) {
	coord, mock, _, ac := newTestCoordinator(t)
	mock.SetSnapshot("1362", okSnapshot("1362"))

	if _, err := ac.Set(context.Background(), "1362", okSnapshot("1362")); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}

	if _, err := coord.GetAuction(context.Background(), "1362", Options{}); err != nil {
		t.Fatalf("GetAuction failed: %v", err)
	}
	if got := mock.Calls(); got != 0 {
		t.Errorf("Expected no scrapes on cache hit, got %d", got)
	}
}

func TestForceRefreshBypassesCache(t *testing.T) {
	coord, mock, _, ac := newTestCoordinator(t)
	mock.SetSnapshot("1362", okSnapshot("1362"))

	if _, err := ac.Set(context.Background(), "1362", okSnapshot("1362")); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}

	if _, err := coord.GetAuction(context.Background(), "1362", Options{ForceRefresh: true}); err != nil {
		t.Fatalf("GetAuction failed: %v", err)
	}
	if got := mock.Calls(); got != 1 {
		t.Errorf("Expected forced scrape, got %d calls", got)
	}
}

// Concurrent callers for one room must collapse onto a single upstream
// scrape and all observe the same result.
func TestConcurrentCallersJoinOneScrape(t *testing.T) {
	coord, mock, _, _ := newTestCoordinator(t)
	mock.SetSnapshot("1362", okSnapshot("1362"))
	mock.SetDelay(100 * time.Millisecond)

	const callers = 8
	entries := make([]*cache.Entry, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i], errs[i] = coord.GetAuction(context.Background(), "1362", Options{})
		}(i)
	}
	wg.Wait()

	if got := mock.Calls(); got != 1 {
		t.Fatalf("Expected exactly 1 scrape for %d callers, got %d", callers, got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("Caller %d failed: %v", i, errs[i])
		}
		if !entries[i].FetchedAt.Equal(entries[0].FetchedAt) {
			t.Errorf("Caller %d observed a different fetch", i)
		}
	}
}

func TestDifferentRoomsScrapeIndependently(t *testing.T) {
	coord, mock, _, _ := newTestCoordinator(t)
	mock.SetSnapshot("1362", okSnapshot("1362"))
	mock.SetSnapshot("2024", okSnapshot("2024"))

	var wg sync.WaitGroup
	for _, room := range []string{"1362", "2024"} {
		wg.Add(1)
		go func(room string) {
			defer wg.Done()
			if _, err := coord.GetAuction(context.Background(), room, Options{}); err != nil {
				t.Errorf("GetAuction(%s) failed: %v", room, err)
			}
		}(room)
	}
	wg.Wait()

	if got := mock.Calls(); got != 2 {
		t.Errorf("Expected one scrape per room, got %d", got)
	}
}

func TestScrapeErrorPropagatesToAllWaiters(t *testing.T) {
	coord, mock, _, _ := newTestCoordinator(t)
	upstreamErr := errors.New("connection refused")
	mock.SetError("1362", upstreamErr)
	mock.SetDelay(50 * time.Millisecond)

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coord.GetAuction(context.Background(), "1362", Options{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, upstreamErr) {
			t.Errorf("Caller %d: expected upstream error, got %v", i, err)
		}
	}
	if got := mock.Calls(); got != 1 {
		t.Errorf("Expected 1 scrape, got %d", got)
	}
}

func TestNotFoundReturnedButNotCached(t *testing.T) {
	coord, mock, _, ac := newTestCoordinator(t)
	mock.SetSnapshot("9999", models.AuctionSnapshot{RoomID: "9999", Status: models.SnapshotNotFound})

	entry, err := coord.GetAuction(context.Background(), "9999", Options{})
	if err != nil {
		t.Fatalf("GetAuction failed: %v", err)
	}
	if entry.Snapshot.Status != models.SnapshotNotFound {
		t.Errorf("Expected not_found status, got %s", entry.Snapshot.Status)
	}

	cached, err := ac.Get(context.Background(), "9999")
	if err != nil {
		t.Fatalf("Cache read failed: %v", err)
	}
	if cached != nil {
		t.Error("Not-found snapshot must not be cached")
	}
}

// A waiter whose context expires detaches; the scrape still finishes and
// lands in the cache for later callers.
func TestCancelledWaiterDetachesWithoutKillingScrape(t *testing.T) {
	coord, mock, _, ac := newTestCoordinator(t)
	mock.SetSnapshot("1362", okSnapshot("1362"))
	mock.SetDelay(150 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := coord.GetAuction(ctx, "1362", Options{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline error, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entry, err := ac.Get(context.Background(), "1362")
		if err != nil {
			t.Fatalf("Cache read failed: %v", err)
		}
		if entry != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Detached scrape never reached the cache")
}

// A lock held by another instance makes this one poll the cache; once the
// holder's result lands, no local scrape happens at all.
func TestRemoteLockPollPicksUpCachedResult(t *testing.T) {
	coord, mock, s, ac := newTestCoordinator(t)
	mock.SetSnapshot("1362", okSnapshot("1362"))

	ctx := context.Background()
	acquired, err := s.SetIfAbsent(ctx, store.LockKey("1362"), []byte("other-instance"), time.Minute)
	if err != nil || !acquired {
		t.Fatalf("Failed to seed remote lock: acquired=%v err=%v", acquired, err)
	}

	// Simulate the remote holder finishing mid-poll.
	go func() {
		time.Sleep(60 * time.Millisecond)
		if _, err := ac.Set(ctx, "1362", okSnapshot("1362")); err != nil {
			t.Errorf("Failed to cache remote result: %v", err)
		}
	}()

	entry, err := coord.GetAuction(ctx, "1362", Options{})
	if err != nil {
		t.Fatalf("GetAuction failed: %v", err)
	}
	if entry.Snapshot.RoomID != "1362" {
		t.Errorf("Expected room 1362, got %s", entry.Snapshot.RoomID)
	}
	if got := mock.Calls(); got != 0 {
		t.Errorf("Expected the remote result to be reused, got %d local scrapes", got)
	}
}

// A remote lock whose holder never delivers must not wedge callers: the poll
// budget runs out and this instance scrapes anyway.
func TestPollExhaustionFallsThroughToScrape(t *testing.T) {
	coord, mock, s, _ := newTestCoordinator(t)
	mock.SetSnapshot("1362", okSnapshot("1362"))

	ctx := context.Background()
	if _, err := s.SetIfAbsent(ctx, store.LockKey("1362"), []byte("stuck-instance"), time.Hour); err != nil {
		t.Fatalf("Failed to seed remote lock: %v", err)
	}

	entry, err := coord.GetAuction(ctx, "1362", Options{})
	if err != nil {
		t.Fatalf("GetAuction failed: %v", err)
	}
	if entry.Snapshot.Status != models.SnapshotOK {
		t.Errorf("Expected ok snapshot after fallthrough, got %s", entry.Snapshot.Status)
	}
	if got := mock.Calls(); got != 1 {
		t.Errorf("Expected exactly 1 scrape after poll exhaustion, got %d", got)
	}
}

// The lock is released after the scrape so the next refresh is not held up.
func TestLockReleasedAfterScrape(t *testing.T) {
	coord, mock, s, _ := newTestCoordinator(t)
	mock.SetSnapshot("1362", okSnapshot("1362"))

	if _, err := coord.GetAuction(context.Background(), "1362", Options{}); err != nil {
		t.Fatalf("GetAuction failed: %v", err)
	}

	held, err := s.Exists(context.Background(), store.LockKey("1362"))
	if err != nil {
		t.Fatalf("Lock probe failed: %v", err)
	}
	if held {
		t.Error("Scrape lock still held after completion")
	}
	if coord.InflightCount() != 0 {
		t.Errorf("Expected drained in-flight map, got %d entries", coord.InflightCount())
	}
}

func TestStaleBudgetAcceptsRecentlyExpiredEntry(t *testing.T) {
	s := store.NewMemoryStore()
	ac := cache.New(s, time.Minute)
	mock := scraper.NewMock()
	mock.SetSnapshot("1362", okSnapshot("1362"))
	coord := New(s, ac, mock, testConfig())

	now := time.Now()
	clock := func() time.Time { return now }
	ac.SetNow(clock)
	s.SetNow(clock)
	coord.SetNow(clock)

	if _, err := ac.Set(context.Background(), "1362", okSnapshot("1362")); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}

	// Two minutes later the entry is a minute past freshness.
	now = now.Add(2 * time.Minute)

	if _, err := coord.GetAuction(context.Background(), "1362", Options{StaleBudget: 5 * time.Minute}); err != nil {
		t.Fatalf("GetAuction failed: %v", err)
	}
	if got := mock.Calls(); got != 0 {
		t.Errorf("Stale budget should have served the cached entry, got %d scrapes", got)
	}

	if _, err := coord.GetAuction(context.Background(), "1362", Options{}); err != nil {
		t.Fatalf("GetAuction failed: %v", err)
	}
	if got := mock.Calls(); got != 1 {
		t.Errorf("Zero budget should have triggered a scrape, got %d", got)
	}
}

func TestRefreshKeepsDraftedPlayerDrafted(t *testing.T) {
	coord, mock, _, ac := newTestCoordinator(t)
	ctx := context.Background()

	won := 48.0
	prev := okSnapshot("1362")
	prev.Players[0].Status = models.StatusDrafted
	prev.Players[0].WinningBid = &won
	prev.Players[0].WinningTeam = "Team A"
	if _, err := ac.Set(ctx, "1362", prev); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}

	// Upstream now reports the drafted player as available, which is only
	// legal when the player vanished entirely, not on a live re-listing.
	mock.SetSnapshot("1362", okSnapshot("1362"))

	entry, err := coord.GetAuction(ctx, "1362", Options{ForceRefresh: true})
	if err != nil {
		t.Fatalf("GetAuction failed: %v", err)
	}
	if got := entry.Snapshot.Players[0].Status; got != models.StatusDrafted {
		t.Errorf("Expected drafted status preserved, got %s", got)
	}

	cached, err := ac.Get(ctx, "1362")
	if err != nil || cached == nil {
		t.Fatalf("Expected cached entry, got %v (err %v)", cached, err)
	}
	if got := cached.Snapshot.Players[0].Status; got != models.StatusDrafted {
		t.Errorf("Expected reconciled snapshot in cache, got status %s", got)
	}
}

func TestRefreshDemotesVanishedDraftedPlayer(t *testing.T) {
	coord, mock, _, ac := newTestCoordinator(t)
	ctx := context.Background()

	won := 48.0
	prev := okSnapshot("1362")
	prev.Players[0].Status = models.StatusDrafted
	prev.Players[0].WinningBid = &won
	prev.Players[0].WinningTeam = "Team A"
	if _, err := ac.Set(ctx, "1362", prev); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}

	next := okSnapshot("1362")
	next.Players = []models.ScrapedPlayer{
		{FullName: "Gunnar Henderson", MLBTeam: "BAL", Positions: []string{"SS"}, Status: models.StatusAvailable},
	}
	mock.SetSnapshot("1362", next)

	entry, err := coord.GetAuction(ctx, "1362", Options{ForceRefresh: true})
	if err != nil {
		t.Fatalf("GetAuction failed: %v", err)
	}
	if len(entry.Snapshot.Players) != 2 {
		t.Fatalf("Expected demoted player carried forward, got %d players", len(entry.Snapshot.Players))
	}

	var witt *models.ScrapedPlayer
	for i := range entry.Snapshot.Players {
		if entry.Snapshot.Players[i].FullName == "Bobby Witt Jr." {
			witt = &entry.Snapshot.Players[i]
		}
	}
	if witt == nil {
		t.Fatal("Expected the vanished drafted player in the reconciled snapshot")
	}
	if witt.Status != models.StatusAvailable {
		t.Errorf("Expected demotion to available, got %s", witt.Status)
	}
	if witt.WinningBid != nil || witt.WinningTeam != "" {
		t.Errorf("Expected cleared bid after demotion, got %v / %q", witt.WinningBid, witt.WinningTeam)
	}
}
