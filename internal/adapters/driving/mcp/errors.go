// Package mcp provides an MCP (Model Context Protocol) server adapter
// for Mnemo. It lets AI assistants search the knowledge base, ask
// grounded questions, and capture new items.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")
