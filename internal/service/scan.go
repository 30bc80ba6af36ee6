package service

import (
	"context"
	"fmt"
	"time"

	"github.com/leaderboard-mirror/internal/domain"
)

// RunScan walks the top upstream pages and inserts users the mirror does
// not know yet, with a placeholder rank. Existing rows are never modified;
// the next full resync assigns the real position.
func (m *Mirror) RunScan(ctx context.Context) error {
	m.logger.Debug("scanning for new users", "pages", m.cfg.Scan.Pages)

	var found int
	for page := 0; page < m.cfg.Scan.Pages; page++ {
		players, err := m.fetcher.FetchPage(ctx, page, m.cfg.Sync.PageSize)
		if err != nil {
			return fmt.Errorf("scanning page %d: %w", page, err)
		}
		if len(players) == 0 {
			break
		}

		now := time.Now()
		for _, p := range players {
			inserted, err := m.store.InsertEntryIfAbsent(ctx, p.Entry(domain.UnrankedRank, false, now))
			if err != nil {
				return fmt.Errorf("inserting new user %s: %w", p.ID, err)
			}
			if inserted {
				found++
			}
		}

		if len(players) < m.cfg.Sync.PageSize {
			break
		}
	}

	now := time.Now()
	if err := m.store.UpdateMetadata(ctx, domain.MetadataUpdate{LastScan: &now}); err != nil {
		m.logger.Warn("failed to record scan time", "error", err)
	}

	if m.hub != nil {
		m.hub.BroadcastScanCompleted(found)
	}
	m.logger.Info("new user scan completed", "new_users", found)
	return nil
}
