package driving

import (
	"context"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
)

// ItemProcessor runs the processing pipeline that turns a raw captured
// item into stored chunks, embeddings, and extracted metadata.
type ItemProcessor interface {
	// ProcessItem processes a captured item end to end. On success the
	// item status is StatusCompleted and connection discovery has been
	// enqueued. On terminal failure the item status is StatusFailed
	// with the error recorded, and the item remains retryable.
	ProcessItem(ctx context.Context, itemID string) error

	// Capture stores a new pending item and processes it. Returns the
	// stored item.
	Capture(ctx context.Context, title, content string, kind domain.ContentKind, sourceURI string) (*domain.Item, error)
}
