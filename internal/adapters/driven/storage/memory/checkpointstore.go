package memory

import (
	"context"
	"sync"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
)

// Ensure CheckpointStore implements the interface.
var _ driven.CheckpointStore = (*CheckpointStore)(nil)

// CheckpointStore is an in-memory implementation of
// driven.CheckpointStore.
type CheckpointStore struct {
	mu    sync.RWMutex
	byRun map[string]driven.Checkpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{byRun: make(map[string]driven.Checkpoint)}
}

// SaveCheckpoint persists a run's latest checkpoint.
func (s *CheckpointStore) SaveCheckpoint(_ context.Context, cp driven.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRun[cp.RunID] = cp
	return nil
}

// LoadCheckpoint retrieves the latest checkpoint for a run.
func (s *CheckpointStore) LoadCheckpoint(_ context.Context, runID string) (*driven.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.byRun[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cp, nil
}

// DeleteCheckpoint removes a run's checkpoint.
func (s *CheckpointStore) DeleteCheckpoint(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byRun, runID)
	return nil
}
