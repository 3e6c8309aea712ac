package mcp

import (
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driving"
)

// Ports aggregates all port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search provides adaptive search over the knowledge base.
	Search driving.SearchService

	// Chat answers questions grounded in stored content.
	Chat driving.ChatService

	// Processor captures and processes new items.
	Processor driving.ItemProcessor

	// Connections lists discovered relationships.
	Connections driving.ConnectionService

	// Items reads stored items for resource serving.
	Items driven.ItemStore
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	// Chat, Processor, Connections and Items are optional; the
	// corresponding tools and resources degrade when absent.
	return nil
}
