package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query to run against the knowledge base"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results   []SearchResultOutput `json:"results"`
	Count     int                  `json:"count"`
	Class     string               `json:"query_class"`
	Expanded  bool                 `json:"expanded"`
	NoResults bool                 `json:"no_results"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	ItemID  string  `json:"item_id"`
	Title   string  `json:"title"`
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Content string  `json:"content,omitempty"`
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question       string `json:"question" jsonschema:"the question to answer from stored content"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"existing conversation to continue; a new one is created when omitted"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer         string           `json:"answer"`
	Citations      []CitationOutput `json:"citations"`
	Verified       bool             `json:"verified"`
	ConversationID string           `json:"conversation_id"`
}

// CitationOutput represents a single citation in an answer.
type CitationOutput struct {
	Index   int    `json:"index"`
	ItemID  string `json:"item_id"`
	ChunkID string `json:"chunk_id"`
	Snippet string `json:"snippet"`
}

// ProcessItemInput is the input schema for the process_item tool.
type ProcessItemInput struct {
	Title     string `json:"title,omitempty" jsonschema:"item title"`
	Content   string `json:"content" jsonschema:"the raw content to capture"`
	Kind      string `json:"kind,omitempty" jsonschema:"content kind: webpage, note or file (default note)"`
	SourceURI string `json:"source_uri,omitempty" jsonschema:"original location of the content"`
}

// ProcessItemOutput is the output schema for the process_item tool.
type ProcessItemOutput struct {
	ItemID string `json:"item_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Search the knowledge base with hybrid keyword and semantic retrieval",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Ask a question answered only from stored content, with citations",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "process_item",
		Description: "Capture new content into the knowledge base and process it",
	}, s.handleProcessItem)
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	outcome, err := s.ports.Search.Search(ctx, input.Query, limit)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results:   make([]SearchResultOutput, len(outcome.Results)),
		Count:     len(outcome.Results),
		Class:     string(outcome.Class),
		Expanded:  outcome.Expanded,
		NoResults: outcome.NoResults,
	}

	for i := range outcome.Results {
		output.Results[i] = SearchResultOutput{
			ItemID:  outcome.Results[i].ItemID,
			Title:   outcome.Results[i].ItemTitle,
			ChunkID: outcome.Results[i].Chunk.ID,
			Score:   outcome.Results[i].Score,
			Content: outcome.Results[i].Chunk.Content,
		}
	}

	return nil, output, nil
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	if s.ports.Chat == nil {
		return nil, AskOutput{}, errors.New("chat service not configured")
	}

	conversationID := input.ConversationID
	if conversationID == "" {
		conv, err := s.ports.Chat.NewConversation(ctx, "")
		if err != nil {
			return nil, AskOutput{}, err
		}
		conversationID = conv.ID
	}

	result, err := s.ports.Chat.SendMessage(ctx, conversationID, input.Question, nil)
	if err != nil {
		return nil, AskOutput{}, err
	}

	output := AskOutput{
		Answer:         result.Answer,
		Citations:      make([]CitationOutput, len(result.Citations)),
		Verified:       result.Verified,
		ConversationID: conversationID,
	}
	for i, c := range result.Citations {
		output.Citations[i] = CitationOutput{
			Index:   c.Index,
			ItemID:  c.ItemID,
			ChunkID: c.ChunkID,
			Snippet: c.Snippet,
		}
	}

	return nil, output, nil
}

// handleProcessItem handles the process_item tool invocation.
func (s *Server) handleProcessItem(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ProcessItemInput,
) (*mcp.CallToolResult, ProcessItemOutput, error) {
	if s.ports.Processor == nil {
		return nil, ProcessItemOutput{}, errors.New("processor not configured")
	}

	kind := domain.ContentKind(input.Kind)
	if input.Kind == "" {
		kind = domain.KindNote
	}

	item, err := s.ports.Processor.Capture(ctx, input.Title, input.Content, kind, input.SourceURI)
	if err != nil {
		return nil, ProcessItemOutput{}, err
	}

	// A failed item is still captured and retryable; report its state
	// rather than erroring the tool call.
	return nil, ProcessItemOutput{
		ItemID: item.ID,
		Status: string(item.Status),
		Error:  item.Error,
	}, nil
}
