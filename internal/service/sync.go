package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leaderboard-mirror/internal/domain"
)

// RunFullSync rebuilds the stored ranking from a full upstream crawl. Rank
// order is the upstream page/entry order. The whole crawl commits in one
// transaction so readers never observe a half-updated ranking.
//
// Only one resync runs at a time; a call made while one is in flight is a
// no-op and returns immediately.
func (m *Mirror) RunFullSync(ctx context.Context) error {
	if !m.syncing.CompareAndSwap(false, true) {
		m.logger.Info("full sync already in progress, skipping")
		return nil
	}
	defer m.syncing.Store(false)

	runID := uuid.New().String()
	start := time.Now()
	m.logger.Info("starting full sync", "run_id", runID)
	if m.hub != nil {
		m.hub.BroadcastSyncStarted(runID)
	}

	syncing := domain.SyncSyncing
	if err := m.store.UpdateMetadata(ctx, domain.MetadataUpdate{Status: &syncing}); err != nil {
		m.logger.Warn("failed to mark sync status", "run_id", runID, "error", err)
	}

	var totalUsers int64
	err := m.store.WithTx(ctx, func(tx domain.EntryWriter) error {
		var currentRank int64
		page := 0
		for page < m.cfg.Sync.MaxPages {
			players, err := m.fetcher.FetchPage(ctx, page, m.cfg.Sync.PageSize)
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrThrottled):
					m.logger.Warn("throttled by upstream, backing off",
						"run_id", runID,
						"page", page,
						"delay", m.cfg.Sync.ThrottleDelay,
					)
					if err := sleepCtx(ctx, m.cfg.Sync.ThrottleDelay); err != nil {
						return err
					}
					// Retry the same page index.
					continue
				case errors.Is(err, domain.ErrUnauthorized):
					m.logger.Error("sync aborted, upstream credential expired", "run_id", runID)
					return err
				default:
					// Transient fault: accept a gap rather than stalling.
					m.logger.Warn("page fetch failed, skipping",
						"run_id", runID,
						"page", page,
						"error", err,
					)
					page++
					continue
				}
			}

			if len(players) == 0 {
				break
			}

			now := time.Now()
			for _, p := range players {
				currentRank++
				if err := tx.UpsertEntry(ctx, p.Entry(currentRank, false, now)); err != nil {
					return fmt.Errorf("upserting rank %d: %w", currentRank, err)
				}
			}
			totalUsers += int64(len(players))

			m.logger.Debug("synced page",
				"run_id", runID,
				"page", page,
				"total_users", totalUsers,
			)
			if m.hub != nil {
				m.hub.BroadcastSyncProgress(runID, page, totalUsers)
			}

			if len(players) < m.cfg.Sync.PageSize {
				break
			}
			page++
		}
		return nil
	})
	if err != nil {
		failed := domain.SyncFailed
		if uerr := m.store.UpdateMetadata(ctx, domain.MetadataUpdate{Status: &failed}); uerr != nil {
			m.logger.Warn("failed to mark sync failure", "run_id", runID, "error", uerr)
		}
		if m.hub != nil {
			m.hub.BroadcastSyncFailed(runID, err.Error())
		}
		m.logger.Error("full sync failed", "run_id", runID, "error", err)
		return fmt.Errorf("full sync: %w", err)
	}

	now := time.Now()
	duration := int64(time.Since(start).Seconds())
	completed := domain.SyncCompleted
	if err := m.store.UpdateMetadata(ctx, domain.MetadataUpdate{
		LastFullSync: &now,
		TotalUsers:   &totalUsers,
		SyncDuration: &duration,
		Status:       &completed,
	}); err != nil {
		m.logger.Warn("failed to record sync completion", "run_id", runID, "error", err)
	}

	if m.hub != nil {
		m.hub.BroadcastSyncCompleted(runID, totalUsers, duration)
	}
	m.logger.Info("full sync completed",
		"run_id", runID,
		"total_users", totalUsers,
		"duration_seconds", duration,
	)
	return nil
}
