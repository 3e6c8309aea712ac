// Package plaintext provides a parser for plain text files.
package plaintext

import (
	"context"
	"strings"

	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
)

// Ensure Parser implements the interface.
var _ driven.Parser = (*Parser)(nil)

// Parser passes plain text through with line-ending normalisation.
type Parser struct{}

// New creates a new plain text parser.
func New() *Parser {
	return &Parser{}
}

// Name returns the parser name.
func (p *Parser) Name() string {
	return "plaintext"
}

// Parse normalises line endings and trims surrounding whitespace.
// Plain text carries no embedded title.
func (p *Parser) Parse(_ context.Context, raw string) (string, string, error) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return "", strings.TrimSpace(text), nil
}
