package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
)

func TestItemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewItemStore()

	item := &domain.Item{ID: "item-1", Title: "Notes", Kind: domain.KindNote, Status: domain.StatusPending, CreatedAt: time.Now()}
	require.NoError(t, store.SaveItem(ctx, item))

	got, err := store.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "Notes", got.Title)

	_, err = store.GetItem(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestItemStoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	items := NewItemStore()
	chunks := NewChunkStore()
	connections := NewConnectionStore()
	items.SetCascades(chunks, connections)

	require.NoError(t, items.SaveItem(ctx, &domain.Item{ID: "item-1"}))
	require.NoError(t, chunks.ReplaceChunks(ctx, "item-1", []domain.Chunk{{ID: "c1", ItemID: "item-1", Content: "hello"}}))
	require.NoError(t, connections.ReplaceConnections(ctx, "item-1", []domain.Connection{
		{SourceID: "item-1", TargetID: "item-2", Strength: 0.5},
	}))

	require.NoError(t, items.DeleteItem(ctx, "item-1"))

	got, err := chunks.GetChunks(ctx, "item-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	conns, err := connections.ListConnections(ctx, "item-1")
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestChunkStoreReplaceIsWholesale(t *testing.T) {
	ctx := context.Background()
	store := NewChunkStore()

	require.NoError(t, store.ReplaceChunks(ctx, "item-1", []domain.Chunk{
		{ID: "old-1", ItemID: "item-1", Position: 0, Content: "old"},
		{ID: "old-2", ItemID: "item-1", Position: 1, Content: "old"},
	}))
	require.NoError(t, store.ReplaceChunks(ctx, "item-1", []domain.Chunk{
		{ID: "new-1", ItemID: "item-1", Position: 0, Content: "new"},
	}))

	chunks, err := store.GetChunks(ctx, "item-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "new-1", chunks[0].ID)
}

func TestChunkStoreRejectsEmbeddingMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewChunkStore()

	require.NoError(t, store.ReplaceChunks(ctx, "item-1", []domain.Chunk{
		{ID: "c1", ItemID: "item-1", Embedding: []float32{1, 0, 0}, EmbeddingModel: "nomic-embed-text"},
	}))

	err := store.ReplaceChunks(ctx, "item-2", []domain.Chunk{
		{ID: "c2", ItemID: "item-2", Embedding: []float32{1, 0}, EmbeddingModel: "nomic-embed-text"},
	})
	assert.ErrorIs(t, err, domain.ErrEmbeddingMismatch)

	err = store.ReplaceChunks(ctx, "item-2", []domain.Chunk{
		{ID: "c2", ItemID: "item-2", Embedding: []float32{1, 0, 0}, EmbeddingModel: "other-model"},
	})
	assert.ErrorIs(t, err, domain.ErrEmbeddingMismatch)
}

func TestChunkStoreVectorSearchOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	store := NewChunkStore()

	require.NoError(t, store.ReplaceChunks(ctx, "item-1", []domain.Chunk{
		{ID: "exact", ItemID: "item-1", Embedding: []float32{1, 0}, EmbeddingModel: "m"},
		{ID: "orthogonal", ItemID: "item-1", Embedding: []float32{0, 1}, EmbeddingModel: "m"},
		{ID: "opposite", ItemID: "item-1", Embedding: []float32{-1, 0}, EmbeddingModel: "m"},
	}))

	hits, err := store.VectorSearch(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "exact", hits[0].ChunkID)
	assert.Equal(t, "orthogonal", hits[1].ChunkID)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestChunkStoreLexicalSearchFindsExactPhrases(t *testing.T) {
	ctx := context.Background()
	store := NewChunkStore()

	require.NoError(t, store.ReplaceChunks(ctx, "item-1", []domain.Chunk{
		{ID: "c1", ItemID: "item-1", Content: "Set MNEMO_HOME to override the data directory."},
		{ID: "c2", ItemID: "item-1", Content: "Unrelated text about gardening."},
	}))

	hits, err := store.LexicalSearch(ctx, "MNEMO_HOME", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ChunkID)
}

func TestConnectionStoreListsBothDirections(t *testing.T) {
	ctx := context.Background()
	store := NewConnectionStore()

	require.NoError(t, store.ReplaceConnections(ctx, "item-a", []domain.Connection{
		{SourceID: "item-a", TargetID: "item-b", Strength: 0.7},
	}))

	fromA, err := store.ListConnections(ctx, "item-a")
	require.NoError(t, err)
	fromB, err := store.ListConnections(ctx, "item-b")
	require.NoError(t, err)

	require.Len(t, fromA, 1)
	require.Len(t, fromB, 1)
	assert.Equal(t, fromA[0], fromB[0])
}

func TestConversationStoreAppendsInOrder(t *testing.T) {
	ctx := context.Background()
	store := NewConversationStore()

	conv := &domain.Conversation{ID: "conv-1", CreatedAt: time.Now()}
	require.NoError(t, store.CreateConversation(ctx, conv))
	assert.ErrorIs(t, store.CreateConversation(ctx, conv), domain.ErrAlreadyExists)

	require.NoError(t, store.AppendMessage(ctx, &domain.Message{ID: "m1", ConversationID: "conv-1", Role: "user", Content: "hi"}))
	require.NoError(t, store.AppendMessage(ctx, &domain.Message{ID: "m2", ConversationID: "conv-1", Role: "assistant", Content: "hello"}))

	msgs, err := store.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)

	err = store.AppendMessage(ctx, &domain.Message{ID: "m3", ConversationID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckpointStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewCheckpointStore()

	cp := driven.Checkpoint{RunID: "run-1", Node: "embed", State: []byte(`{"x":1}`), SavedAt: time.Now()}
	require.NoError(t, store.SaveCheckpoint(ctx, cp))

	got, err := store.LoadCheckpoint(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "embed", got.Node)

	require.NoError(t, store.DeleteCheckpoint(ctx, "run-1"))
	_, err = store.LoadCheckpoint(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
