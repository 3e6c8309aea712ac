package driven

import (
	"context"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
)

// ConnectionStore persists discovered connections between items.
type ConnectionStore interface {
	// ReplaceConnections replaces all connections discovered for an
	// item. Re-running discovery for the same item supersedes prior
	// connections rather than duplicating them.
	ReplaceConnections(ctx context.Context, itemID string, connections []domain.Connection) error

	// ListConnections returns connections involving an item, strongest
	// first. Connections are symmetric: a connection stored as A->B is
	// returned when listing either A or B.
	ListConnections(ctx context.Context, itemID string) ([]domain.Connection, error)
}
