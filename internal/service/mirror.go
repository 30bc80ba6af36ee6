package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/leaderboard-mirror/internal/config"
	"github.com/leaderboard-mirror/internal/domain"
	"github.com/leaderboard-mirror/internal/websocket"
)

// ViewCache holds resolved lookup views for a short TTL. A nil cache is a
// valid configuration; every lookup then goes to the store and upstream.
type ViewCache interface {
	GetView(ctx context.Context, userID string) (*domain.LookupResult, error)
	SetView(ctx context.Context, result domain.LookupResult) error
}

// Mirror maintains the local copy of the upstream leaderboard and answers
// lookups by blending stored rows with live single-user fetches.
type Mirror struct {
	store   domain.Store
	fetcher domain.Fetcher
	cache   ViewCache
	hub     *websocket.Hub
	cfg     *config.Config
	logger  *slog.Logger

	// Single-flight guard for the full resync.
	syncing atomic.Bool
}

// NewMirror creates a new mirror service
func NewMirror(store domain.Store, fetcher domain.Fetcher, cfg *config.Config, logger *slog.Logger) *Mirror {
	return &Mirror{
		store:   store,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
	}
}

// SetViewCache attaches an optional lookup view cache
func (m *Mirror) SetViewCache(cache ViewCache) {
	m.cache = cache
}

// SetHub attaches an optional WebSocket hub for sync event broadcasts
func (m *Mirror) SetHub(hub *websocket.Hub) {
	m.hub = hub
}

// Lookup answers a rank lookup for one user with the freshest obtainable
// view. It degrades to stored data when the live fetch fails and returns
// domain.ErrEntryNotFound only when neither source knows the user.
func (m *Mirror) Lookup(ctx context.Context, userID string) (*domain.LookupResult, error) {
	if userID == "" {
		return nil, domain.ErrInvalidRequest
	}

	if m.cache != nil {
		cached, err := m.cache.GetView(ctx, userID)
		if err != nil {
			m.logger.Warn("view cache read failed", "user_id", userID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	stored, err := m.store.GetEntry(ctx, userID)
	if err != nil && !domain.IsNotFoundError(err) {
		// A broken store read must not fail the lookup while a live fetch
		// can still answer it.
		m.logger.Warn("store read failed during lookup", "user_id", userID, "error", err)
		stored = nil
	}

	live, err := m.fetcher.FetchUser(ctx, userID)
	if err != nil {
		if domain.IsFatalUpstreamError(err) {
			m.logger.Error("live fetch rejected, upstream credential expired", "error", err)
		} else if !domain.IsNotFoundError(err) {
			m.logger.Warn("live fetch failed", "user_id", userID, "error", err)
		}
		if stored != nil {
			return cachedView(stored), nil
		}
		return nil, domain.ErrEntryNotFound
	}

	rank := m.resolveRank(ctx, stored, live)

	merged := live.Entry(rank, true, time.Now())
	if err := m.store.UpsertEntry(ctx, merged); err != nil {
		m.logger.Warn("failed to persist merged entry", "user_id", userID, "error", err)
	}

	result := &domain.LookupResult{
		Source:       domain.SourceLive,
		UserID:       merged.UserID,
		Username:     merged.Username,
		Avatar:       merged.Avatar,
		Rank:         merged.Rank,
		Level:        merged.Level,
		XP:           merged.XP,
		MessageCount: merged.MessageCount,
	}

	if m.cache != nil {
		if err := m.cache.SetView(ctx, *result); err != nil {
			m.logger.Warn("view cache write failed", "user_id", userID, "error", err)
		}
	}
	return result, nil
}

// resolveRank decides whether the stored rank is still usable or has to be
// recomputed from the live XP. Small XP drift keeps the stored rank to
// avoid a recount on every lookup.
func (m *Mirror) resolveRank(ctx context.Context, stored *domain.LeaderboardEntry, live *domain.Player) int64 {
	if stored != nil && abs(stored.XP-live.XP) <= m.cfg.Lookup.XPDriftThreshold {
		return stored.Rank
	}

	count, err := m.store.CountWithXPGreaterThan(ctx, live.XP)
	if err != nil {
		m.logger.Warn("rank recount failed", "error", err)
		if stored != nil {
			return stored.Rank
		}
		return domain.UnrankedRank
	}
	return count + 1
}

// Status reports the mirror's sync state
func (m *Mirror) Status(ctx context.Context) (*domain.StatusReport, error) {
	meta, err := m.store.ReadMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading sync status: %w", err)
	}
	return &domain.StatusReport{
		TotalUsers:   meta.TotalUsers,
		LastFullSync: meta.LastFullSync,
		LastScan:     meta.LastScan,
		SyncDuration: meta.SyncDuration,
		SyncStatus:   meta.Status,
		SyncRunning:  m.syncing.Load(),
	}, nil
}

// SyncRunning reports whether a full resync is currently in flight
func (m *Mirror) SyncRunning() bool {
	return m.syncing.Load()
}

// cachedView builds a lookup result from a stored row, with the data age
// in whole minutes.
func cachedView(entry *domain.LeaderboardEntry) *domain.LookupResult {
	age := int64(time.Since(entry.LastUpdated).Minutes())
	if age < 0 {
		age = 0
	}
	return &domain.LookupResult{
		Source:         domain.SourceCached,
		UserID:         entry.UserID,
		Username:       entry.Username,
		Avatar:         entry.Avatar,
		Rank:           entry.Rank,
		Level:          entry.Level,
		XP:             entry.XP,
		MessageCount:   entry.MessageCount,
		DataAgeMinutes: age,
	}
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// sleepCtx sleeps for d or until the context is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
