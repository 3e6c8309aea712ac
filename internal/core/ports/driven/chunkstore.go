package driven

import (
	"context"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
)

// VectorHit is a vector similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// ItemID is the item owning the matched chunk.
	ItemID string

	// Similarity is the cosine similarity score in [0,1].
	Similarity float64
}

// LexicalHit is a lexical (term/phrase) search result.
type LexicalHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// ItemID is the item owning the matched chunk.
	ItemID string

	// Score is the relevance score (BM25-style, higher is better).
	Score float64
}

// ChunkStore persists chunks with their embeddings and answers the two
// retrieval queries the hybrid retriever fuses. Writes are serialised
// per item; reads are never blocked by writes to other items.
type ChunkStore interface {
	// ReplaceChunks replaces all chunks for an item wholesale.
	// Returns domain.ErrEmbeddingMismatch when the new chunks'
	// embedding model or dimensionality disagrees with embeddings
	// already in the store.
	ReplaceChunks(ctx context.Context, itemID string, chunks []domain.Chunk) error

	// GetChunk retrieves a chunk by ID. Returns domain.ErrNotFound if
	// the chunk does not exist.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// GetChunks retrieves an item's chunks ordered by position.
	GetChunks(ctx context.Context, itemID string) ([]domain.Chunk, error)

	// DeleteChunks removes all chunks for an item.
	DeleteChunks(ctx context.Context, itemID string) error

	// VectorSearch returns the k nearest chunks to the query vector by
	// cosine similarity, best first.
	VectorSearch(ctx context.Context, embedding []float32, k int) ([]VectorHit, error)

	// LexicalSearch returns the k most relevant chunks to the query
	// text, best first.
	LexicalSearch(ctx context.Context, query string, k int) ([]LexicalHit, error)
}
