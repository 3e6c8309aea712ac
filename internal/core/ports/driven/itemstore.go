package driven

import (
	"context"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
)

// ItemStore persists captured items.
type ItemStore interface {
	// SaveItem stores or updates an item.
	SaveItem(ctx context.Context, item *domain.Item) error

	// GetItem retrieves an item by ID. Returns domain.ErrNotFound if
	// the item does not exist.
	GetItem(ctx context.Context, id string) (*domain.Item, error)

	// ListItems returns all items, newest first.
	ListItems(ctx context.Context) ([]domain.Item, error)

	// DeleteItem removes an item. Deletion cascades to its chunks and
	// connections.
	DeleteItem(ctx context.Context, id string) error
}
