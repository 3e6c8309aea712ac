package cli

import (
	"context"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
)

// setupTestServices injects mock services into the package-level
// service vars and returns a cleanup restoring them to nil.
func setupTestServices() func() {
	return setupServices(
		&mockSearchService{outcome: &domain.SearchOutcome{
			Results: []domain.SearchResult{{
				ItemID:    "item-1",
				ItemTitle: "Test Item",
				Chunk:     domain.Chunk{ID: "chunk-1", Content: "matching content"},
				Score:     0.0164,
			}},
			Class: domain.QuerySimple,
		}},
		&mockChatService{result: &domain.ChatResult{Answer: "answer [1]", Verified: true}},
		&mockProcessor{item: &domain.Item{ID: "item-1", Kind: domain.KindNote, Status: domain.StatusCompleted}},
		&mockConnectionService{},
		&mockItemStore{items: map[string]*domain.Item{}},
	)
}

func setupServices(
	search *mockSearchService,
	chat *mockChatService,
	proc *mockProcessor,
	conns *mockConnectionService,
	items *mockItemStore,
) func() {
	searchService = search
	chatService = chat
	processorService = proc
	connectionService = conns
	itemStore = items
	return func() {
		searchService = nil
		chatService = nil
		processorService = nil
		connectionService = nil
		itemStore = nil
	}
}

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	outcome *domain.SearchOutcome
	err     error
	queries []string
	limits  []int
}

func (m *mockSearchService) Search(_ context.Context, query string, limit int) (*domain.SearchOutcome, error) {
	m.queries = append(m.queries, query)
	m.limits = append(m.limits, limit)
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
	result *domain.ChatResult
	tokens []string
	err    error
	sent   []string
}

func (m *mockChatService) SendMessage(_ context.Context, _, text string, onToken driven.TokenFunc) (*domain.ChatResult, error) {
	m.sent = append(m.sent, text)
	if m.err != nil {
		return nil, m.err
	}
	if onToken != nil {
		for _, tok := range m.tokens {
			if err := onToken(tok); err != nil {
				return nil, err
			}
		}
	}
	return m.result, nil
}

func (m *mockChatService) NewConversation(_ context.Context, title string) (*domain.Conversation, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Conversation{ID: "conv-1", Title: title}, nil
}

// mockProcessor is a mock implementation of driving.ItemProcessor.
type mockProcessor struct {
	item     *domain.Item
	err      error
	captured []string
}

func (m *mockProcessor) ProcessItem(_ context.Context, _ string) error {
	return m.err
}

func (m *mockProcessor) Capture(_ context.Context, _, content string, _ domain.ContentKind, _ string) (*domain.Item, error) {
	m.captured = append(m.captured, content)
	return m.item, m.err
}

// mockConnectionService is a mock implementation of driving.ConnectionService.
type mockConnectionService struct {
	connections []domain.Connection
	err         error
	discovered  []string
}

func (m *mockConnectionService) DiscoverConnections(_ context.Context, itemID string) error {
	m.discovered = append(m.discovered, itemID)
	return m.err
}

func (m *mockConnectionService) ListConnections(_ context.Context, _ string) ([]domain.Connection, error) {
	return m.connections, m.err
}

// mockItemStore is a mock implementation of driven.ItemStore.
type mockItemStore struct {
	items map[string]*domain.Item
	err   error
}

func (m *mockItemStore) SaveItem(_ context.Context, item *domain.Item) error {
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
	if _, ok := m.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.items, id)
	return m.err
}
