package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leaderboard-mirror/internal/domain"
)

// pagedFetcher serves a fixed set of pages in order.
func pagedFetcher(pages [][]domain.Player) *fakeFetcher {
	return &fakeFetcher{
		fetchPage: func(ctx context.Context, page, limit int) ([]domain.Player, error) {
			if page >= len(pages) {
				return nil, nil
			}
			return pages[page], nil
		},
	}
}

func TestFullSyncAssignsSequentialRanks(t *testing.T) {
	store := newFakeStore()
	fetcher := pagedFetcher([][]domain.Player{
		{
			{ID: "U1", Username: "a", XP: 900},
			{ID: "U2", Username: "b", XP: 800},
			{ID: "U3", Username: "c", XP: 700},
		},
		{
			{ID: "U4", Username: "d", XP: 600},
			{ID: "U5", Username: "e", XP: 500},
		},
	})
	mirror := newTestMirror(store, fetcher)

	if err := mirror.RunFullSync(context.Background()); err != nil {
		t.Fatalf("RunFullSync returned error: %v", err)
	}

	for i, id := range []string{"U1", "U2", "U3", "U4", "U5"} {
		entry, err := store.GetEntry(context.Background(), id)
		if err != nil {
			t.Fatalf("missing entry %s: %v", id, err)
		}
		if want := int64(i + 1); entry.Rank != want {
			t.Errorf("%s rank = %d, want %d", id, entry.Rank, want)
		}
		if entry.IsLive {
			t.Errorf("%s should be stored as a bulk row, not live", id)
		}
	}

	meta, _ := store.ReadMetadata(context.Background())
	if meta.TotalUsers != 5 {
		t.Errorf("total users = %d, want 5", meta.TotalUsers)
	}
	if meta.Status != domain.SyncCompleted {
		t.Errorf("status = %s, want completed", meta.Status)
	}
	if meta.LastFullSync.IsZero() {
		t.Error("last full sync timestamp was not recorded")
	}
}

func TestFullSyncSingleFlight(t *testing.T) {
	store := newFakeStore()
	started := make(chan struct{})
	release := make(chan struct{})
	var fetchCalls atomic.Int64

	fetcher := &fakeFetcher{
		fetchPage: func(ctx context.Context, page, limit int) ([]domain.Player, error) {
			if fetchCalls.Add(1) == 1 {
				close(started)
				<-release
			}
			return nil, nil
		},
	}
	mirror := newTestMirror(store, fetcher)

	done := make(chan error, 1)
	go func() {
		done <- mirror.RunFullSync(context.Background())
	}()
	<-started

	// A second call while one is in flight is a silent no-op.
	if err := mirror.RunFullSync(context.Background()); err != nil {
		t.Fatalf("overlapping call returned error: %v", err)
	}
	if got := fetchCalls.Load(); got != 1 {
		t.Errorf("overlapping call touched upstream, %d fetches", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first sync returned error: %v", err)
	}
	if mirror.SyncRunning() {
		t.Error("syncing flag still set after completion")
	}
}

func TestFullSyncUnauthorizedRollsBack(t *testing.T) {
	store := newFakeStore()
	store.entries["U1"] = domain.LeaderboardEntry{UserID: "U1", Username: "old", XP: 100, Rank: 1}

	fetcher := &fakeFetcher{
		fetchPage: func(ctx context.Context, page, limit int) ([]domain.Player, error) {
			if page == 0 {
				// A full page keeps the crawl going into the failing page.
				return []domain.Player{
					{ID: "U1", Username: "new", XP: 999},
					{ID: "U6", Username: "f", XP: 998},
					{ID: "U7", Username: "g", XP: 997},
				}, nil
			}
			return nil, domain.ErrUnauthorized
		},
	}
	mirror := newTestMirror(store, fetcher)

	err := mirror.RunFullSync(context.Background())
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	// The partial crawl must not have leaked into the store.
	entry, getErr := store.GetEntry(context.Background(), "U1")
	if getErr != nil {
		t.Fatal(getErr)
	}
	if entry.Username != "old" || entry.XP != 100 {
		t.Errorf("partial sync visible after abort: %+v", entry)
	}
	if _, err := store.GetEntry(context.Background(), "U6"); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Error("rows from the aborted crawl leaked into the store")
	}

	meta, _ := store.ReadMetadata(context.Background())
	if meta.Status != domain.SyncFailed {
		t.Errorf("status = %s, want failed", meta.Status)
	}
}

func TestFullSyncThrottleRetriesSamePage(t *testing.T) {
	store := newFakeStore()
	var calls []int
	throttled := false
	fetcher := &fakeFetcher{
		fetchPage: func(ctx context.Context, page, limit int) ([]domain.Player, error) {
			calls = append(calls, page)
			if page == 0 && !throttled {
				throttled = true
				return nil, domain.ErrThrottled
			}
			if page == 0 {
				return []domain.Player{{ID: "U1", XP: 10}}, nil
			}
			return nil, nil
		},
	}
	mirror := newTestMirror(store, fetcher)

	if err := mirror.RunFullSync(context.Background()); err != nil {
		t.Fatalf("RunFullSync returned error: %v", err)
	}
	if len(calls) < 2 || calls[0] != 0 || calls[1] != 0 {
		t.Errorf("expected page 0 to be retried after the throttle, got %v", calls)
	}
	if _, err := store.GetEntry(context.Background(), "U1"); err != nil {
		t.Errorf("entry missing after throttle recovery: %v", err)
	}
}

func TestFullSyncTransientFailureSkipsPage(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{
		fetchPage: func(ctx context.Context, page, limit int) ([]domain.Player, error) {
			switch page {
			case 0:
				return nil, errors.New("connection reset")
			case 1:
				return []domain.Player{{ID: "U9", XP: 42}}, nil
			default:
				return nil, nil
			}
		},
	}
	mirror := newTestMirror(store, fetcher)

	if err := mirror.RunFullSync(context.Background()); err != nil {
		t.Fatalf("a transient page failure must not abort the sync: %v", err)
	}

	entry, err := store.GetEntry(context.Background(), "U9")
	if err != nil {
		t.Fatalf("entry from the surviving page is missing: %v", err)
	}
	if entry.Rank != 1 {
		t.Errorf("rank numbering should continue across the gap, got %d", entry.Rank)
	}
}

func TestFullSyncIdempotent(t *testing.T) {
	store := newFakeStore()
	fetcher := pagedFetcher([][]domain.Player{
		{
			{ID: "U1", XP: 300},
			{ID: "U2", XP: 200},
		},
	})
	mirror := newTestMirror(store, fetcher)

	for i := 0; i < 2; i++ {
		if err := mirror.RunFullSync(context.Background()); err != nil {
			t.Fatalf("run %d failed: %v", i+1, err)
		}
	}

	if len(store.entries) != 2 {
		t.Errorf("expected 2 entries after repeated syncs, got %d", len(store.entries))
	}
	u2, _ := store.GetEntry(context.Background(), "U2")
	if u2.Rank != 2 {
		t.Errorf("U2 rank = %d, want 2", u2.Rank)
	}
}

func TestFullSyncRankMatchesXPOrder(t *testing.T) {
	store := newFakeStore()
	fetcher := pagedFetcher([][]domain.Player{
		{
			{ID: "U1", XP: 1000},
			{ID: "U2", XP: 750},
			{ID: "U3", XP: 500},
		},
		{
			{ID: "U4", XP: 250},
		},
	})
	mirror := newTestMirror(store, fetcher)

	if err := mirror.RunFullSync(context.Background()); err != nil {
		t.Fatal(err)
	}

	// With distinct XP values the stored rank equals one plus the number
	// of users with strictly more XP.
	for id := range store.entries {
		entry, _ := store.GetEntry(context.Background(), id)
		count, err := store.CountWithXPGreaterThan(context.Background(), entry.XP)
		if err != nil {
			t.Fatal(err)
		}
		if entry.Rank != count+1 {
			t.Errorf("%s rank = %d, want %d", id, entry.Rank, count+1)
		}
	}
}

func TestFullSyncThrottleHonorsContext(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{
		fetchPage: func(ctx context.Context, page, limit int) ([]domain.Player, error) {
			return nil, domain.ErrThrottled
		},
	}
	mirror := newTestMirror(store, fetcher)
	mirror.cfg.Sync.ThrottleDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- mirror.RunFullSync(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected cancellation error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sync did not stop after context cancellation")
	}
}
