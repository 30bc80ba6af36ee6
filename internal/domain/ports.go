package domain

import "context"

// EntryWriter is the narrow write surface available inside a store
// transaction.
type EntryWriter interface {
	UpsertEntry(ctx context.Context, entry LeaderboardEntry) error
}

// Store is the contract for the persistent ranked mirror.
//
// Error semantics:
//   - ErrEntryNotFound: no row for the requested user
//   - Other errors: infrastructure failures (connection, query errors)
type Store interface {
	EntryWriter

	// GetEntry retrieves a single mirrored row by user identity.
	GetEntry(ctx context.Context, userID string) (*LeaderboardEntry, error)

	// InsertEntryIfAbsent inserts a row only when none exists for the user.
	// It reports whether a row was inserted. Existing rows are never touched.
	InsertEntryIfAbsent(ctx context.Context, entry LeaderboardEntry) (bool, error)

	// CountWithXPGreaterThan returns the number of rows with strictly
	// greater XP. A user's dense rank is 1 + that count.
	CountWithXPGreaterThan(ctx context.Context, xp int64) (int64, error)

	// ReadMetadata returns the singleton sync-status record.
	ReadMetadata(ctx context.Context) (*SyncMetadata, error)

	// UpdateMetadata applies a partial update to the sync-status record.
	UpdateMetadata(ctx context.Context, update MetadataUpdate) error

	// WithTx runs fn inside a transaction. The batch of writes issued
	// through tx is applied atomically; any error rolls back all of them.
	WithTx(ctx context.Context, fn func(tx EntryWriter) error) error
}

// Fetcher is the contract for the remote leaderboard client.
type Fetcher interface {
	FetchPage(ctx context.Context, page, limit int) ([]Player, error)
	FetchUser(ctx context.Context, userID string) (*Player, error)
}
