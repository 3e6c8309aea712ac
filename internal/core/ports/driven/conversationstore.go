package driven

import (
	"context"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
)

// ConversationStore persists conversations and their append-only
// message lists.
type ConversationStore interface {
	// CreateConversation stores a new conversation.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error

	// GetConversation retrieves a conversation by ID. Returns
	// domain.ErrNotFound if it does not exist.
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// AppendMessage appends a message to a conversation. Messages are
	// appended in strict send order.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns a conversation's messages in append order.
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
}
