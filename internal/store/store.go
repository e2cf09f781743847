// Package store persists snapshots of financial data and fill-run records.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pfs-cli/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = eris.New("store: not found")

// SnapshotFilter narrows ListSnapshots.
type SnapshotFilter struct {
	Owner string `json:"owner,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// RunFilter narrows ListFillRuns.
type RunFilter struct {
	SnapshotID string          `json:"snapshot_id,omitempty"`
	TemplateID string          `json:"template_id,omitempty"`
	Status     model.RunStatus `json:"status,omitempty"`
	Limit      int             `json:"limit,omitempty"`
}

// Store is the persistence interface. List results are newest first and
// fill runs come back from lists without their outcomes.
type Store interface {
	// Snapshots
	SaveSnapshot(ctx context.Context, s *model.Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error)
	ListSnapshots(ctx context.Context, f SnapshotFilter) ([]model.Snapshot, error)

	// Fill runs
	SaveFillRun(ctx context.Context, r *model.FillRun) error
	GetFillRun(ctx context.Context, id string) (*model.FillRun, error)
	ListFillRuns(ctx context.Context, f RunFilter) ([]model.FillRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultLimit = 50

func limitOf(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	return n
}

// stamp assigns an id and creation time to records that have none, so a
// record mirrored to two backends carries the same identity in both.
func stamp(id *string, created *time.Time) {
	if *id == "" {
		*id = uuid.New().String()
	}
	if created.IsZero() {
		*created = time.Now().UTC()
	}
}
