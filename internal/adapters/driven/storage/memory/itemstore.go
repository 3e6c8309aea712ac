// Package memory provides in-memory implementations of the storage
// ports, used in tests and as a zero-setup development backend.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
)

// Ensure ItemStore implements the interface.
var _ driven.ItemStore = (*ItemStore)(nil)

// ItemStore is an in-memory implementation of driven.ItemStore.
type ItemStore struct {
	mu    sync.RWMutex
	items map[string]domain.Item

	// cascade targets, optional
	chunks      *ChunkStore
	connections *ConnectionStore
}

// NewItemStore creates a new in-memory item store.
func NewItemStore() *ItemStore {
	return &ItemStore{items: make(map[string]domain.Item)}
}

// SetCascades wires the stores that item deletion cascades to.
func (s *ItemStore) SetCascades(chunks *ChunkStore, connections *ConnectionStore) {
	s.chunks = chunks
	s.connections = connections
}

// SaveItem stores or updates an item.
func (s *ItemStore) SaveItem(_ context.Context, item *domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = *item
	return nil
}

// GetItem retrieves an item by ID.
func (s *ItemStore) GetItem(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

// ListItems returns all items, newest first.
func (s *ItemStore) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

// DeleteItem removes an item and cascades to its chunks and connections.
func (s *ItemStore) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.items[id]; !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(s.items, id)
	s.mu.Unlock()

	if s.chunks != nil {
		if err := s.chunks.DeleteChunks(ctx, id); err != nil {
			return err
		}
	}
	if s.connections != nil {
		if err := s.connections.ReplaceConnections(ctx, id, nil); err != nil {
			return err
		}
	}
	return nil
}
