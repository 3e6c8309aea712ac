package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
)

// Ensure ConversationStore implements the interface.
var _ driven.ConversationStore = (*ConversationStore)(nil)

// ConversationStore is an in-memory implementation of
// driven.ConversationStore.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]domain.Conversation
	messages      map[string][]domain.Message
}

// NewConversationStore creates a new in-memory conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]domain.Conversation),
		messages:      make(map[string][]domain.Message),
	}
}

// CreateConversation stores a new conversation.
func (s *ConversationStore) CreateConversation(_ context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conv.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.conversations[conv.ID] = *conv
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *ConversationStore) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &conv, nil
}

// AppendMessage appends a message to a conversation in send order.
func (s *ConversationStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return domain.ErrNotFound
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	conv.UpdatedAt = time.Now()
	s.conversations[msg.ConversationID] = conv
	return nil
}

// ListMessages returns a conversation's messages in append order.
func (s *ConversationStore) ListMessages(_ context.Context, conversationID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]domain.Message, len(s.messages[conversationID]))
	copy(msgs, s.messages[conversationID])
	return msgs, nil
}
