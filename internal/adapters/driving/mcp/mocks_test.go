package mcp

import (
	"context"

	"github.com/google/uuid"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	outcome *domain.SearchOutcome
	err     error
}

func (m *mockSearchService) Search(_ context.Context, _ string, _ int) (*domain.SearchOutcome, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.outcome == nil {
		return &domain.SearchOutcome{}, nil
	}
	return m.outcome, nil
}

// mockChatService is a mock implementation of driving.ChatService.
type mockChatService struct {
	result        *domain.ChatResult
	err           error
	conversations []string
}

func (m *mockChatService) SendMessage(_ context.Context, conversationID, _ string, _ driven.TokenFunc) (*domain.ChatResult, error) {
	m.conversations = append(m.conversations, conversationID)
	return m.result, m.err
}

func (m *mockChatService) NewConversation(_ context.Context, title string) (*domain.Conversation, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Conversation{ID: uuid.New().String(), Title: title}, nil
}

// mockProcessor is a mock implementation of driving.ItemProcessor.
type mockProcessor struct {
	item *domain.Item
	err  error
}

func (m *mockProcessor) ProcessItem(_ context.Context, _ string) error {
	return m.err
}

func (m *mockProcessor) Capture(_ context.Context, _, _ string, _ domain.ContentKind, _ string) (*domain.Item, error) {
	return m.item, m.err
}

// mockItemStore is a mock implementation of driven.ItemStore.
type mockItemStore struct {
	items map[string]*domain.Item
	err   error
}

func (m *mockItemStore) SaveItem(_ context.Context, item *domain.Item) error {
	if m.items == nil {
		m.items = make(map[string]*domain.Item)
	}
	m.items[item.ID] = item
	return m.err
}

func (m *mockItemStore) GetItem(_ context.Context, id string) (*domain.Item, error) {
	if m.err != nil {
		return nil, m.err
	}
	item, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (m *mockItemStore) ListItems(_ context.Context) ([]domain.Item, error) {
	if m.err != nil {
		return nil, m.err
	}
	var items []domain.Item
	for _, item := range m.items {
		items = append(items, *item)
	}
	return items, nil
}

func (m *mockItemStore) DeleteItem(_ context.Context, id string) error {
	delete(m.items, id)
	return m.err
}
