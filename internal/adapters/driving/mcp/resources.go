package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// uriScheme is the custom URI scheme for Mnemo resources.
const uriScheme = "mnemo://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for listing items.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "items",
		Name:        "items",
		Description: "List of all captured items",
		MIMEType:    "application/json",
	}, s.handleItemsResource)

	// Template for item content.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "items/{itemId}",
		Name:        "item-content",
		Description: "Content and metadata of a specific item",
		MIMEType:    "application/json",
	}, s.handleItemContentResource)
}

// handleItemsResource returns a list of all captured items.
func (s *Server) handleItemsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Items == nil {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     "[]",
			}},
		}, nil
	}

	items, err := s.ports.Items.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	// Build simplified item list.
	type itemInfo struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Kind   string `json:"kind"`
		Status string `json:"status"`
	}

	infos := make([]itemInfo, len(items))
	for i := range items {
		infos[i] = itemInfo{
			ID:     items[i].ID,
			Title:  items[i].Title,
			Kind:   string(items[i].Kind),
			Status: string(items[i].Status),
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling items: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleItemContentResource returns a specific item with its metadata.
func (s *Server) handleItemContentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Items == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	itemID := extractItemID(req.Params.URI)
	if itemID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	item, err := s.ports.Items.GetItem(ctx, itemID)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	type itemDetail struct {
		ID        string   `json:"id"`
		Title     string   `json:"title"`
		Kind      string   `json:"kind"`
		Status    string   `json:"status"`
		SourceURI string   `json:"source_uri,omitempty"`
		Summary   string   `json:"summary,omitempty"`
		Concepts  []string `json:"concepts,omitempty"`
		Entities  []string `json:"entities,omitempty"`
		Content   string   `json:"content"`
	}

	detail := itemDetail{
		ID:        item.ID,
		Title:     item.Title,
		Kind:      string(item.Kind),
		Status:    string(item.Status),
		SourceURI: item.SourceURI,
		Content:   item.Content,
	}
	if item.Metadata != nil {
		detail.Summary = item.Metadata.Summary
		detail.Concepts = item.Metadata.Concepts
		detail.Entities = item.Metadata.Entities
	}

	data, err := json.MarshalIndent(detail, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling item: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractItemID extracts the item ID from a URI like mnemo://items/{itemId}.
func extractItemID(uri string) string {
	const prefix = uriScheme + "items/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	return strings.TrimPrefix(uri, prefix)
}
