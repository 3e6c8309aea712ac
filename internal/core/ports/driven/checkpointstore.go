package driven

import (
	"context"
	"time"
)

// Checkpoint is a persisted workflow engine snapshot taken after a node
// completed.
type Checkpoint struct {
	// RunID identifies the workflow run.
	RunID string

	// Node is the last completed node.
	Node string

	// State is the marshalled typed state after Node ran.
	State []byte

	// SavedAt is when the checkpoint was taken.
	SavedAt time.Time
}

// CheckpointStore durably keys workflow state by run identifier so an
// interrupted run can resume from the last persisted node rather than
// from the start.
type CheckpointStore interface {
	// SaveCheckpoint persists the state after a node completed,
	// overwriting any previous checkpoint for the run.
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error

	// LoadCheckpoint retrieves the latest checkpoint for a run.
	// Returns domain.ErrNotFound if the run has no checkpoint.
	LoadCheckpoint(ctx context.Context, runID string) (*Checkpoint, error)

	// DeleteCheckpoint removes a run's checkpoint, typically after the
	// run completes.
	DeleteCheckpoint(ctx context.Context, runID string) error
}
