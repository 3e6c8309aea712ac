// Package parsers provides kind-specific text extraction and the
// registry resolving a parser for each content kind.
package parsers

import (
	"fmt"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo/internal/parsers/html"
	"github.com/mnemo-labs/mnemo/internal/parsers/markdown"
	"github.com/mnemo-labs/mnemo/internal/parsers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.ParserRegistry = (*Registry)(nil)

// Registry maps content kinds to parsers.
type Registry struct {
	byKind map[domain.ContentKind]driven.Parser
}

// NewRegistry creates a registry with the default parsers: web pages
// are HTML, notes are Markdown, files are plain text.
func NewRegistry() *Registry {
	return &Registry{
		byKind: map[domain.ContentKind]driven.Parser{
			domain.KindWebPage: html.New(),
			domain.KindNote:    markdown.New(),
			domain.KindFile:    plaintext.New(),
		},
	}
}

// Register adds or replaces the parser for a content kind.
func (r *Registry) Register(kind domain.ContentKind, parser driven.Parser) {
	r.byKind[kind] = parser
}

// ParserFor returns the parser for the given kind.
func (r *Registry) ParserFor(kind domain.ContentKind) (driven.Parser, error) {
	parser, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no parser for content kind %q", domain.ErrInvalidInput, kind)
	}
	return parser, nil
}
