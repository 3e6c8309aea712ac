package driving

import (
	"context"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
)

// ChatService runs the retrieval-augmented chat pipeline.
type ChatService interface {
	// SendMessage appends a user turn to a conversation and generates
	// a grounded, cited answer. Tokens are delivered to onToken as they
	// are produced (onToken may be nil for non-streaming callers).
	// Concurrent turns on the same conversation are serialised.
	// Cancelling ctx stops provider token generation.
	SendMessage(ctx context.Context, conversationID, text string, onToken driven.TokenFunc) (*domain.ChatResult, error)

	// NewConversation creates an empty conversation.
	NewConversation(ctx context.Context, title string) (*domain.Conversation, error)
}
