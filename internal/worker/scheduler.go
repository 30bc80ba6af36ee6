package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/leaderboard-mirror/internal/config"
)

// Jobs is the set of schedulable mirror operations. Both are plain callable
// operations; all timing lives here.
type Jobs interface {
	RunFullSync(ctx context.Context) error
	RunScan(ctx context.Context) error
}

// Scheduler drives the periodic full resync and new-user scan on two
// independent timers.
type Scheduler struct {
	jobs    Jobs
	syncCfg *config.SyncConfig
	scanCfg *config.ScanConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new scheduler
func NewScheduler(jobs Jobs, syncCfg *config.SyncConfig, scanCfg *config.ScanConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		jobs:    jobs,
		syncCfg: syncCfg,
		scanCfg: scanCfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background timers
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("scheduler started",
		"sync_enabled", s.syncCfg.Enabled,
		"sync_interval", s.syncCfg.Interval,
		"scan_enabled", s.scanCfg.Enabled,
		"scan_interval", s.scanCfg.Interval,
	)

	go s.run(ctx)
	return nil
}

// Stop stops the background timers
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
	return nil
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	// A nil channel never fires, which keeps disabled jobs out of the
	// select without special-casing the loop.
	var syncC, scanC <-chan time.Time
	if s.syncCfg.Enabled {
		ticker := time.NewTicker(s.syncCfg.Interval)
		defer ticker.Stop()
		syncC = ticker.C
	}
	if s.scanCfg.Enabled {
		ticker := time.NewTicker(s.scanCfg.Interval)
		defer ticker.Stop()
		scanC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-syncC:
			if err := s.jobs.RunFullSync(ctx); err != nil {
				s.logger.Error("scheduled full sync failed", "error", err)
			}
		case <-scanC:
			// Scan failures are abandoned; the next tick retries.
			if err := s.jobs.RunScan(ctx); err != nil {
				s.logger.Warn("scheduled scan failed", "error", err)
			}
		}
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
