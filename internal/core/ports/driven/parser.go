package driven

import (
	"context"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
)

// Parser extracts plain text from one kind of raw captured content.
type Parser interface {
	// Name returns the parser name for logging.
	Name() string

	// Parse extracts plain text from raw content. It may also return
	// a title discovered in the content ("" when none).
	Parse(ctx context.Context, raw string) (title, text string, err error)
}

// ParserRegistry resolves the parser for a content kind.
type ParserRegistry interface {
	// ParserFor returns the parser for the given kind. Returns
	// domain.ErrInvalidInput for unknown kinds.
	ParserFor(kind domain.ContentKind) (Parser, error)
}
