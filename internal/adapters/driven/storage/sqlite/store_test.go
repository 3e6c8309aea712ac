package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testItem(id string, createdAt time.Time) *domain.Item {
	return &domain.Item{
		ID:        id,
		Title:     "title " + id,
		Content:   "content " + id,
		Kind:      domain.KindNote,
		Status:    domain.StatusCompleted,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestItemRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	items := store.ItemStore()

	now := time.Now().UTC().Truncate(time.Second)
	item := testItem("item-1", now)
	item.Metadata = &domain.Metadata{
		Summary:  "a summary",
		Concepts: []string{"go", "sqlite"},
		Entities: []string{"Acme Corp"},
	}
	require.NoError(t, items.SaveItem(ctx, item))

	got, err := items.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, item.Title, got.Title)
	assert.Equal(t, domain.KindNote, got.Kind)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, "a summary", got.Metadata.Summary)
	assert.Equal(t, []string{"Acme Corp"}, got.Metadata.Entities)
	assert.True(t, got.CreatedAt.Equal(now))
}

func TestItemNilMetadataStaysNil(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	items := store.ItemStore()

	require.NoError(t, items.SaveItem(ctx, testItem("item-1", time.Now())))

	got, err := items.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Nil(t, got.Metadata)
}

func TestItemNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.ItemStore().GetItem(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveItemUpserts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	items := store.ItemStore()

	item := testItem("item-1", time.Now())
	require.NoError(t, items.SaveItem(ctx, item))

	item.Status = domain.StatusFailed
	item.Error = "extraction failed"
	require.NoError(t, items.SaveItem(ctx, item))

	got, err := items.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "extraction failed", got.Error)

	all, err := items.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListItemsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	items := store.ItemStore()

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, items.SaveItem(ctx, testItem("item-old", base.Add(-2*time.Hour))))
	require.NoError(t, items.SaveItem(ctx, testItem("item-new", base)))
	require.NoError(t, items.SaveItem(ctx, testItem("item-mid", base.Add(-time.Hour))))

	all, err := items.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "item-new", all[0].ID)
	assert.Equal(t, "item-mid", all[1].ID)
	assert.Equal(t, "item-old", all[2].ID)
}

func TestDeleteItemCascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	items := store.ItemStore()
	chunks := store.ChunkStore()
	connections := store.ConnectionStore()

	require.NoError(t, items.SaveItem(ctx, testItem("item-1", time.Now())))
	require.NoError(t, items.SaveItem(ctx, testItem("item-2", time.Now())))
	require.NoError(t, chunks.ReplaceChunks(ctx, "item-1", []domain.Chunk{
		{ID: "c1", ItemID: "item-1", Position: 0, Content: "searchable walrus text"},
	}))
	require.NoError(t, connections.ReplaceConnections(ctx, "item-1", []domain.Connection{
		{SourceID: "item-1", TargetID: "item-2", Strength: 0.5},
	}))

	require.NoError(t, items.DeleteItem(ctx, "item-1"))

	_, err := items.GetItem(ctx, "item-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	remaining, err := chunks.GetChunks(ctx, "item-1")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	conns, err := connections.ListConnections(ctx, "item-2")
	require.NoError(t, err)
	assert.Empty(t, conns)

	// The full-text index must not serve hits for deleted chunks.
	hits, err := chunks.LexicalSearch(ctx, "walrus", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeleteItemNotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.ItemStore().DeleteItem(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReplaceChunksWholesale(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	items := store.ItemStore()
	chunks := store.ChunkStore()

	require.NoError(t, items.SaveItem(ctx, testItem("item-1", time.Now())))
	require.NoError(t, chunks.ReplaceChunks(ctx, "item-1", []domain.Chunk{
		{ID: "old-0", ItemID: "item-1", Position: 0, Content: "first draft"},
		{ID: "old-1", ItemID: "item-1", Position: 1, Content: "second part"},
	}))

	require.NoError(t, chunks.ReplaceChunks(ctx, "item-1", []domain.Chunk{
		{ID: "new-0", ItemID: "item-1", Position: 0, Content: "rewritten", TokenCount: 3},
	}))

	got, err := chunks.GetChunks(ctx, "item-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new-0", got[0].ID)
	assert.Equal(t, 3, got[0].TokenCount)

	_, err = chunks.GetChunk(ctx, "old-0")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChunkEmbeddingRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	chunks := store.ChunkStore()

	require.NoError(t, store.ItemStore().SaveItem(ctx, testItem("item-1", time.Now())))
	require.NoError(t, chunks.ReplaceChunks(ctx, "item-1", []domain.Chunk{{
		ID: "c1", ItemID: "item-1", Position: 0, Content: "text",
		Embedding: []float32{0.25, -1.5, 3}, EmbeddingModel: "test-embed",
	}}))

	got, err := chunks.GetChunk(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -1.5, 3}, got.Embedding)
	assert.Equal(t, "test-embed", got.EmbeddingModel)
}

func TestReplaceChunksRejectsEmbeddingMismatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	chunks := store.ChunkStore()

	require.NoError(t, store.ItemStore().SaveItem(ctx, testItem("item-1", time.Now())))
	require.NoError(t, store.ItemStore().SaveItem(ctx, testItem("item-2", time.Now())))

	require.NoError(t, chunks.ReplaceChunks(ctx, "item-1", []domain.Chunk{{
		ID: "c1", ItemID: "item-1", Content: "a",
		Embedding: []float32{1, 2, 3}, EmbeddingModel: "model-a",
	}}))

	// Different dimensionality.
	err := chunks.ReplaceChunks(ctx, "item-2", []domain.Chunk{{
		ID: "c2", ItemID: "item-2", Content: "b",
		Embedding: []float32{1, 2}, EmbeddingModel: "model-a",
	}})
	assert.ErrorIs(t, err, domain.ErrEmbeddingMismatch)

	// Different model.
	err = chunks.ReplaceChunks(ctx, "item-2", []domain.Chunk{{
		ID: "c2", ItemID: "item-2", Content: "b",
		Embedding: []float32{1, 2, 3}, EmbeddingModel: "model-b",
	}})
	assert.ErrorIs(t, err, domain.ErrEmbeddingMismatch)

	// Re-replacing the only embedded item may change shape.
	err = chunks.ReplaceChunks(ctx, "item-1", []domain.Chunk{{
		ID: "c1", ItemID: "item-1", Content: "a",
		Embedding: []float32{1, 2}, EmbeddingModel: "model-b",
	}})
	assert.NoError(t, err)
}

func TestVectorSearchOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	chunks := store.ChunkStore()

	require.NoError(t, store.ItemStore().SaveItem(ctx, testItem("item-1", time.Now())))
	require.NoError(t, chunks.ReplaceChunks(ctx, "item-1", []domain.Chunk{
		{ID: "close", ItemID: "item-1", Position: 0, Content: "a", Embedding: []float32{1, 0, 0}, EmbeddingModel: "m"},
		{ID: "far", ItemID: "item-1", Position: 1, Content: "b", Embedding: []float32{-1, 0, 0}, EmbeddingModel: "m"},
		{ID: "mid", ItemID: "item-1", Position: 2, Content: "c", Embedding: []float32{0, 1, 0}, EmbeddingModel: "m"},
	}))

	hits, err := chunks.VectorSearch(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "close", hits[0].ChunkID)
	assert.Equal(t, "mid", hits[1].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, "item-1", hits[0].ItemID)
}

func TestVectorSearchSkipsUnembeddedChunks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	chunks := store.ChunkStore()

	require.NoError(t, store.ItemStore().SaveItem(ctx, testItem("item-1", time.Now())))
	require.NoError(t, chunks.ReplaceChunks(ctx, "item-1", []domain.Chunk{
		{ID: "plain", ItemID: "item-1", Position: 0, Content: "no embedding"},
	}))

	hits, err := chunks.VectorSearch(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLexicalSearchRanksMatches(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	chunks := store.ChunkStore()

	require.NoError(t, store.ItemStore().SaveItem(ctx, testItem("item-1", time.Now())))
	require.NoError(t, chunks.ReplaceChunks(ctx, "item-1", []domain.Chunk{
		{ID: "about-raft", ItemID: "item-1", Position: 0, Content: "raft consensus elects a leader, raft logs replicate"},
		{ID: "aside", ItemID: "item-1", Position: 1, Content: "notes about gardening and soil drainage"},
		{ID: "mentions", ItemID: "item-1", Position: 2, Content: "the meeting mentioned raft once"},
	}))

	hits, err := chunks.LexicalSearch(ctx, "raft consensus", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "about-raft", hits[0].ChunkID)
	assert.Greater(t, hits[0].Score, 0.0)
	for _, hit := range hits {
		assert.NotEqual(t, "aside", hit.ChunkID)
	}
}

func TestLexicalSearchQuotesUserInput(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	chunks := store.ChunkStore()

	require.NoError(t, store.ItemStore().SaveItem(ctx, testItem("item-1", time.Now())))
	require.NoError(t, chunks.ReplaceChunks(ctx, "item-1", []domain.Chunk{
		{ID: "c1", ItemID: "item-1", Position: 0, Content: "configure the MNEMO_HOME variable"},
	}))

	// FTS5 operators and punctuation in the query must not be parsed
	// as query syntax.
	hits, err := chunks.LexicalSearch(ctx, `MNEMO_HOME AND NOT "odd (syntax)`, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "c1", hits[0].ChunkID)

	hits, err = chunks.LexicalSearch(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestConnectionsSymmetricAndReplaced(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	items := store.ItemStore()
	connections := store.ConnectionStore()

	require.NoError(t, items.SaveItem(ctx, testItem("item-a", time.Now())))
	require.NoError(t, items.SaveItem(ctx, testItem("item-b", time.Now())))
	require.NoError(t, items.SaveItem(ctx, testItem("item-c", time.Now())))

	require.NoError(t, connections.ReplaceConnections(ctx, "item-a", []domain.Connection{
		{SourceID: "item-a", TargetID: "item-b", Strength: 0.4, Signals: map[domain.Signal]float64{domain.SignalTemporal: 0.8}},
		{SourceID: "item-a", TargetID: "item-c", Strength: 0.9, Signals: map[domain.Signal]float64{domain.SignalSimilarity: 0.95}},
	}))

	fromA, err := connections.ListConnections(ctx, "item-a")
	require.NoError(t, err)
	require.Len(t, fromA, 2)
	assert.Equal(t, "item-c", fromA[0].TargetID, "strongest first")
	assert.InDelta(t, 0.95, fromA[0].Signals[domain.SignalSimilarity], 1e-9)

	fromB, err := connections.ListConnections(ctx, "item-b")
	require.NoError(t, err)
	require.Len(t, fromB, 1)
	assert.Equal(t, "item-a", fromB[0].SourceID)

	// Re-running discovery replaces rather than accumulates.
	require.NoError(t, connections.ReplaceConnections(ctx, "item-a", []domain.Connection{
		{SourceID: "item-a", TargetID: "item-b", Strength: 0.6},
	}))
	fromA, err = connections.ListConnections(ctx, "item-a")
	require.NoError(t, err)
	require.Len(t, fromA, 1)
	assert.InDelta(t, 0.6, fromA[0].Strength, 1e-9)
}

func TestConversationRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	convs := store.ConversationStore()

	now := time.Now().UTC().Truncate(time.Second)
	conv := &domain.Conversation{ID: "conv-1", Title: "planning", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, convs.CreateConversation(ctx, conv))

	assert.ErrorIs(t, convs.CreateConversation(ctx, conv), domain.ErrAlreadyExists)

	got, err := convs.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "planning", got.Title)

	_, err = convs.GetConversation(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMessagesAppendInOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	convs := store.ConversationStore()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, convs.CreateConversation(ctx, &domain.Conversation{ID: "conv-1", CreatedAt: now, UpdatedAt: now}))

	// Identical timestamps: append order must still hold.
	require.NoError(t, convs.AppendMessage(ctx, &domain.Message{
		ID: "m1", ConversationID: "conv-1", Role: domain.RoleUser, Content: "question", CreatedAt: now,
	}))
	require.NoError(t, convs.AppendMessage(ctx, &domain.Message{
		ID: "m2", ConversationID: "conv-1", Role: domain.RoleAssistant, Content: "answer [1]",
		Citations: []domain.Citation{{ChunkID: "c1", ItemID: "item-1", Index: 1, Snippet: "snippet"}},
		Verified:  true,
		CreatedAt: now,
	}))

	messages, err := convs.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, domain.RoleUser, messages[0].Role)
	assert.Equal(t, domain.RoleAssistant, messages[1].Role)
	assert.True(t, messages[1].Verified)
	require.Len(t, messages[1].Citations, 1)
	assert.Equal(t, "c1", messages[1].Citations[0].ChunkID)
	assert.Empty(t, messages[0].Citations)
}

func TestAppendMessageUnknownConversation(t *testing.T) {
	store := newTestStore(t)
	err := store.ConversationStore().AppendMessage(context.Background(), &domain.Message{
		ID: "m1", ConversationID: "missing", Role: domain.RoleUser, Content: "hi",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	checkpoints := store.CheckpointStore()

	cp := driven.Checkpoint{RunID: "run-1", Node: "embed", State: []byte(`{"step":3}`)}
	require.NoError(t, checkpoints.SaveCheckpoint(ctx, cp))

	// Overwrite with a later node.
	cp.Node = "store"
	cp.State = []byte(`{"step":7}`)
	require.NoError(t, checkpoints.SaveCheckpoint(ctx, cp))

	got, err := checkpoints.LoadCheckpoint(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "store", got.Node)
	assert.Equal(t, []byte(`{"step":7}`), got.State)
	assert.False(t, got.SavedAt.IsZero())

	require.NoError(t, checkpoints.DeleteCheckpoint(ctx, "run-1"))
	_, err = checkpoints.LoadCheckpoint(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReopenSkipsAppliedMigrations(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.ItemStore().SaveItem(ctx, testItem("item-1", time.Now())))
	require.NoError(t, first.Close())

	second, err := NewStore(dir)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.ItemStore().GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "item-1", got.ID)
}
