package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leaderboard-mirror/internal/config"
	"github.com/leaderboard-mirror/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same query
// methods serve pooled and transactional access.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides PostgreSQL-backed access to the mirrored leaderboard
type Store struct {
	pool   *pgxpool.Pool
	db     querier
	logger *slog.Logger
}

// NewStore creates a new PostgreSQL store
func NewStore(cfg *config.PostgresConfig, logger *slog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Store{
		pool:   pool,
		db:     pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// RunMigrations executes database migrations
func (s *Store) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS leaderboard (
			user_id VARCHAR(64) PRIMARY KEY,
			username VARCHAR(255) NOT NULL DEFAULT '',
			discriminator VARCHAR(8) NOT NULL DEFAULT '',
			avatar VARCHAR(255) NOT NULL DEFAULT '',
			rank BIGINT NOT NULL,
			level INT NOT NULL DEFAULT 0,
			xp BIGINT NOT NULL DEFAULT 0,
			message_count BIGINT NOT NULL DEFAULT 0,
			last_updated TIMESTAMPTZ NOT NULL,
			is_live BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS sync_metadata (
			id INT PRIMARY KEY CHECK (id = 1),
			last_full_sync TIMESTAMPTZ,
			last_scan TIMESTAMPTZ,
			total_users BIGINT NOT NULL DEFAULT 0,
			sync_duration BIGINT NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'pending'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_rank ON leaderboard(rank)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_xp ON leaderboard(xp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_level ON leaderboard(level DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_updated ON leaderboard(last_updated DESC)`,
		`INSERT INTO sync_metadata (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
	}

	for _, migration := range migrations {
		_, err := s.db.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	s.logger.Info("database migrations completed")
	return nil
}

// GetEntry retrieves a mirrored row by user ID
func (s *Store) GetEntry(ctx context.Context, userID string) (*domain.LeaderboardEntry, error) {
	query := `
		SELECT user_id, username, discriminator, avatar, rank, level, xp, message_count, last_updated, is_live
		FROM leaderboard
		WHERE user_id = $1
	`
	var entry domain.LeaderboardEntry
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&entry.UserID,
		&entry.Username,
		&entry.Discriminator,
		&entry.Avatar,
		&entry.Rank,
		&entry.Level,
		&entry.XP,
		&entry.MessageCount,
		&entry.LastUpdated,
		&entry.IsLive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, fmt.Errorf("getting entry: %w", err)
	}
	return &entry, nil
}

// UpsertEntry inserts or replaces a mirrored row
func (s *Store) UpsertEntry(ctx context.Context, entry domain.LeaderboardEntry) error {
	query := `
		INSERT INTO leaderboard (user_id, username, discriminator, avatar, rank, level, xp, message_count, last_updated, is_live)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id)
		DO UPDATE SET
			username = $2, discriminator = $3, avatar = $4, rank = $5,
			level = $6, xp = $7, message_count = $8, last_updated = $9, is_live = $10
	`
	_, err := s.db.Exec(ctx, query,
		entry.UserID,
		entry.Username,
		entry.Discriminator,
		entry.Avatar,
		entry.Rank,
		entry.Level,
		entry.XP,
		entry.MessageCount,
		entry.LastUpdated,
		entry.IsLive,
	)
	if err != nil {
		return fmt.Errorf("upserting entry: %w", err)
	}
	return nil
}

// InsertEntryIfAbsent inserts a row only when the user is not mirrored yet.
// It reports whether a row was inserted.
func (s *Store) InsertEntryIfAbsent(ctx context.Context, entry domain.LeaderboardEntry) (bool, error) {
	query := `
		INSERT INTO leaderboard (user_id, username, discriminator, avatar, rank, level, xp, message_count, last_updated, is_live)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO NOTHING
	`
	result, err := s.db.Exec(ctx, query,
		entry.UserID,
		entry.Username,
		entry.Discriminator,
		entry.Avatar,
		entry.Rank,
		entry.Level,
		entry.XP,
		entry.MessageCount,
		entry.LastUpdated,
		entry.IsLive,
	)
	if err != nil {
		return false, fmt.Errorf("inserting entry: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// CountWithXPGreaterThan returns how many rows hold strictly more XP
func (s *Store) CountWithXPGreaterThan(ctx context.Context, xp int64) (int64, error) {
	query := `SELECT COUNT(*) FROM leaderboard WHERE xp > $1`
	var count int64
	if err := s.db.QueryRow(ctx, query, xp).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting entries by xp: %w", err)
	}
	return count, nil
}

// ReadMetadata returns the singleton sync-status record
func (s *Store) ReadMetadata(ctx context.Context) (*domain.SyncMetadata, error) {
	query := `
		SELECT last_full_sync, last_scan, total_users, sync_duration, status
		FROM sync_metadata
		WHERE id = 1
	`
	var (
		meta     domain.SyncMetadata
		lastFull *time.Time
		lastScan *time.Time
	)
	err := s.db.QueryRow(ctx, query).Scan(
		&lastFull,
		&lastScan,
		&meta.TotalUsers,
		&meta.SyncDuration,
		&meta.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("reading sync metadata: %w", err)
	}
	if lastFull != nil {
		meta.LastFullSync = *lastFull
	}
	if lastScan != nil {
		meta.LastScan = *lastScan
	}
	return &meta, nil
}

// UpdateMetadata applies a partial update to the sync-status record
func (s *Store) UpdateMetadata(ctx context.Context, update domain.MetadataUpdate) error {
	var (
		set  []string
		args []any
	)
	if update.LastFullSync != nil {
		args = append(args, *update.LastFullSync)
		set = append(set, fmt.Sprintf("last_full_sync = $%d", len(args)))
	}
	if update.LastScan != nil {
		args = append(args, *update.LastScan)
		set = append(set, fmt.Sprintf("last_scan = $%d", len(args)))
	}
	if update.TotalUsers != nil {
		args = append(args, *update.TotalUsers)
		set = append(set, fmt.Sprintf("total_users = $%d", len(args)))
	}
	if update.SyncDuration != nil {
		args = append(args, *update.SyncDuration)
		set = append(set, fmt.Sprintf("sync_duration = $%d", len(args)))
	}
	if update.Status != nil {
		args = append(args, string(*update.Status))
		set = append(set, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(set) == 0 {
		return nil
	}

	query := `UPDATE sync_metadata SET ` + strings.Join(set, ", ") + ` WHERE id = 1`
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("updating sync metadata: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction. All writes issued through the
// transaction-bound store are committed together or rolled back together.
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.EntryWriter) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txStore := &Store{db: tx, logger: s.logger}
	if err := fn(txStore); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
