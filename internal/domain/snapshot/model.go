package snapshot

import (
	"context"
	"time"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/standings"
)

// Version is the snapshot blob format version.
const Version = 1

// Metadata describes one archived table state.
type Metadata struct {
	SnapshotID  string    `json:"snapshotId"`
	LeagueID    int       `json:"leagueId"`
	SeasonID    int       `json:"seasonId"`
	CreatedAt   time.Time `json:"createdAt"`
	Description string    `json:"description,omitempty"`
	Version     int       `json:"version"`
}

// Snapshot is the full self-describing archive of a league-season table.
// Immutable after creation.
type Snapshot struct {
	Metadata Metadata          `json:"metadata"`
	Entries  []standings.Entry `json:"entries"`
	// Checksum is "sha256:<hex>" over the canonical entries JSON, empty when
	// checksums are disabled.
	Checksum  string `json:"checksum,omitempty"`
	SizeBytes int64  `json:"-"`
	FilePath  string `json:"-"`
}

// RestoreError is one structured failure inside a restore attempt.
type RestoreError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

const (
	RestoreErrorValidation = "validation_error"
	RestoreErrorDatabase   = "database_error"
	RestoreErrorNotFound   = "snapshot_not_found"
)

// RestoreResult reports the outcome of a restore. Partial success is
// impossible: either every entry was written or none.
type RestoreResult struct {
	Success              bool           `json:"success"`
	RestoredEntries      int            `json:"restoredEntries"`
	PreRestoreSnapshotID string         `json:"preRestoreSnapshotId,omitempty"`
	Errors               []RestoreError `json:"errors,omitempty"`
}

// Store archives and restores league-season tables.
type Store interface {
	Create(ctx context.Context, leagueID, seasonID int, description string) (string, error)
	Get(ctx context.Context, snapshotID string) (Snapshot, error)
	List(ctx context.Context, leagueID, seasonID int) ([]Snapshot, error)
	Restore(ctx context.Context, snapshotID string) (RestoreResult, error)
	Delete(ctx context.Context, snapshotID string) error
	DeleteOlderThan(ctx context.Context, maxAgeDays int) (int, error)
}
