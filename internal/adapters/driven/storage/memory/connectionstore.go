package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
)

// Ensure ConnectionStore implements the interface.
var _ driven.ConnectionStore = (*ConnectionStore)(nil)

// ConnectionStore is an in-memory implementation of driven.ConnectionStore.
type ConnectionStore struct {
	mu sync.RWMutex
	// bySource maps the discovering item to its connections.
	bySource map[string][]domain.Connection
}

// NewConnectionStore creates a new in-memory connection store.
func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{bySource: make(map[string][]domain.Connection)}
}

// ReplaceConnections replaces all connections discovered for an item.
func (s *ConnectionStore) ReplaceConnections(_ context.Context, itemID string, connections []domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(connections) == 0 {
		delete(s.bySource, itemID)
		return nil
	}
	stored := make([]domain.Connection, len(connections))
	copy(stored, connections)
	s.bySource[itemID] = stored
	return nil
}

// ListConnections returns connections involving an item, strongest
// first. A connection stored as A->B is returned when listing either
// endpoint.
func (s *ConnectionStore) ListConnections(_ context.Context, itemID string) ([]domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Connection
	for _, conns := range s.bySource {
		for _, c := range conns {
			if c.SourceID == itemID || c.TargetID == itemID {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength == out[j].Strength {
			return out[i].TargetID < out[j].TargetID
		}
		return out[i].Strength > out[j].Strength
	})
	return out, nil
}
