package domain

import "time"

// SyncStatus represents the lifecycle state of the full resync.
type SyncStatus string

const (
	SyncPending   SyncStatus = "pending"
	SyncSyncing   SyncStatus = "syncing"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

// SyncMetadata is the singleton sync-status record. Zero timestamps mean
// the corresponding job has never run.
type SyncMetadata struct {
	LastFullSync time.Time  `json:"last_full_sync"`
	LastScan     time.Time  `json:"last_scan"`
	TotalUsers   int64      `json:"total_users"`
	SyncDuration int64      `json:"sync_duration_seconds"`
	Status       SyncStatus `json:"status"`
}

// MetadataUpdate carries a partial update of SyncMetadata; nil fields are
// left untouched.
type MetadataUpdate struct {
	LastFullSync *time.Time
	LastScan     *time.Time
	TotalUsers   *int64
	SyncDuration *int64
	Status       *SyncStatus
}

// StatusReport is the view returned to callers of Status.
type StatusReport struct {
	TotalUsers   int64      `json:"total_users"`
	LastFullSync time.Time  `json:"last_full_sync"`
	LastScan     time.Time  `json:"last_scan"`
	SyncDuration int64      `json:"sync_duration_seconds"`
	SyncStatus   SyncStatus `json:"sync_status"`
	SyncRunning  bool       `json:"sync_running"`
}
