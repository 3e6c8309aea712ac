package driving

import (
	"context"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
)

// ConnectionService discovers and lists relationships between items.
type ConnectionService interface {
	// DiscoverConnections finds and scores relationships for an item.
	// It is idempotent: re-running replaces the item's prior
	// connections rather than duplicating them.
	DiscoverConnections(ctx context.Context, itemID string) error

	// ListConnections returns connections involving an item,
	// strongest first.
	ListConnections(ctx context.Context, itemID string) ([]domain.Connection, error)
}
