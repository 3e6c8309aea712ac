package driving

import (
	"context"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
)

// SearchService answers natural-language queries with ranked results,
// decomposing and expanding the query as needed.
type SearchService interface {
	// Search runs the adaptive search pipeline. An empty outcome is
	// explicit (NoResults true), distinct from an error.
	Search(ctx context.Context, query string, limit int) (*domain.SearchOutcome, error)
}
