package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo/internal/adapters/driven/storage/memory"
	"github.com/mnemo-labs/mnemo/internal/core/domain"
)

type connFixture struct {
	connector   *Connector
	items       *memory.ItemStore
	chunks      *memory.ChunkStore
	connections *memory.ConnectionStore
}

func newConnFixture(t *testing.T) *connFixture {
	t.Helper()

	f := &connFixture{
		items:       memory.NewItemStore(),
		chunks:      memory.NewChunkStore(),
		connections: memory.NewConnectionStore(),
	}
	connector, err := NewConnector(f.items, f.chunks, f.connections, DefaultConnectorConfig())
	require.NoError(t, err)
	f.connector = connector
	return f
}

func (f *connFixture) addItem(t *testing.T, id string, entities []string, createdAt time.Time, embedding []float32) {
	t.Helper()
	ctx := context.Background()

	item := &domain.Item{
		ID:        id,
		Title:     id,
		Status:    domain.StatusCompleted,
		CreatedAt: createdAt,
		Metadata:  &domain.Metadata{Summary: "s", Concepts: []string{"c"}, Entities: entities},
	}
	require.NoError(t, f.items.SaveItem(ctx, item))

	if embedding != nil {
		require.NoError(t, f.chunks.ReplaceChunks(ctx, id, []domain.Chunk{{
			ID: id + "-c0", ItemID: id, Content: "content",
			Embedding: embedding, EmbeddingModel: "fake-embed",
		}}))
	}
}

func TestDiscoverConnectionsSharedEntitySameDay(t *testing.T) {
	ctx := context.Background()
	f := newConnFixture(t)
	now := time.Now()

	f.addItem(t, "item-a", []string{"Acme Corp"}, now, nil)
	f.addItem(t, "item-b", []string{"Acme Corp"}, now.Add(-2*time.Hour), nil)

	require.NoError(t, f.connector.DiscoverConnections(ctx, "item-a"))

	conns, err := f.connector.ListConnections(ctx, "item-a")
	require.NoError(t, err)
	require.Len(t, conns, 1)

	conn := conns[0]
	assert.Equal(t, "item-b", conn.TargetID)
	assert.GreaterOrEqual(t, conn.Strength, 0.3)
	assert.InDelta(t, 1.0, conn.Signals[domain.SignalSharedEntity], 1e-9)
	assert.Greater(t, conn.Signals[domain.SignalTemporal], 0.9)
}

func TestConnectionsAreSymmetric(t *testing.T) {
	ctx := context.Background()
	f := newConnFixture(t)
	now := time.Now()

	f.addItem(t, "item-a", []string{"Acme Corp"}, now, nil)
	f.addItem(t, "item-b", []string{"Acme Corp"}, now, nil)

	require.NoError(t, f.connector.DiscoverConnections(ctx, "item-a"))

	fromA, err := f.connector.ListConnections(ctx, "item-a")
	require.NoError(t, err)
	fromB, err := f.connector.ListConnections(ctx, "item-b")
	require.NoError(t, err)

	require.Len(t, fromA, 1)
	require.Len(t, fromB, 1)
	assert.Equal(t, fromA[0].Strength, fromB[0].Strength)
	assert.Equal(t, "item-a", fromB[0].SourceID)
}

func TestDiscoverConnectionsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newConnFixture(t)
	now := time.Now()

	f.addItem(t, "item-a", []string{"Acme Corp"}, now, nil)
	f.addItem(t, "item-b", []string{"Acme Corp"}, now, nil)

	require.NoError(t, f.connector.DiscoverConnections(ctx, "item-a"))
	require.NoError(t, f.connector.DiscoverConnections(ctx, "item-a"))

	conns, err := f.connector.ListConnections(ctx, "item-a")
	require.NoError(t, err)
	assert.Len(t, conns, 1, "re-running replaces, never duplicates")
}

func TestDiscoverConnectionsBelowThreshold(t *testing.T) {
	ctx := context.Background()
	f := newConnFixture(t)
	now := time.Now()

	// No shared entities, a month apart, no embeddings: every signal is
	// zero or absent.
	f.addItem(t, "item-a", []string{"Acme Corp"}, now, nil)
	f.addItem(t, "item-b", []string{"Globex"}, now.Add(-30*24*time.Hour), nil)

	require.NoError(t, f.connector.DiscoverConnections(ctx, "item-a"))

	conns, err := f.connector.ListConnections(ctx, "item-a")
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestDiscoverConnectionsSimilarityOnly(t *testing.T) {
	ctx := context.Background()
	f := newConnFixture(t)
	now := time.Now()

	// Identical embeddings, no entities, far apart in time: strength is
	// exactly the similarity weight.
	f.addItem(t, "item-a", nil, now, []float32{1, 0, 0, 0})
	f.addItem(t, "item-b", nil, now.Add(-60*24*time.Hour), []float32{1, 0, 0, 0})

	require.NoError(t, f.connector.DiscoverConnections(ctx, "item-a"))

	conns, err := f.connector.ListConnections(ctx, "item-a")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.InDelta(t, DefaultSimilarityWeight, conns[0].Strength, 1e-9)
	assert.InDelta(t, 1.0, conns[0].Signals[domain.SignalSimilarity], 1e-9)
	assert.Zero(t, conns[0].Signals[domain.SignalSharedEntity])
}

func TestDiscoverConnectionsUnknownItem(t *testing.T) {
	f := newConnFixture(t)
	err := f.connector.DiscoverConnections(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCentroid(t *testing.T) {
	centroid := domain.Centroid([][]float32{{1, 0}, {0, 1}})
	assert.Equal(t, []float32{0.5, 0.5}, centroid)
	assert.Nil(t, domain.Centroid(nil))
}
