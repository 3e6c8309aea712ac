package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
)

// Ensure ChunkStore implements the interface.
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore is an in-memory implementation of driven.ChunkStore.
// Vector search is a brute-force cosine scan; lexical search is simple
// term-frequency scoring with an exact-phrase bonus.
type ChunkStore struct {
	mu     sync.RWMutex
	byItem map[string][]domain.Chunk
}

// NewChunkStore creates a new in-memory chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{byItem: make(map[string][]domain.Chunk)}
}

// ReplaceChunks replaces all chunks for an item wholesale. It rejects
// chunks whose embedding model or dimensionality disagrees with
// embeddings already in the store.
func (s *ChunkStore) ReplaceChunks(_ context.Context, itemID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	model, dims := s.storedEmbeddingShape(itemID)
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		if model != "" && (c.EmbeddingModel != model || len(c.Embedding) != dims) {
			return domain.ErrEmbeddingMismatch
		}
	}

	if len(chunks) == 0 {
		delete(s.byItem, itemID)
		return nil
	}
	stored := make([]domain.Chunk, len(chunks))
	copy(stored, chunks)
	s.byItem[itemID] = stored
	return nil
}

// storedEmbeddingShape returns the model and dimensionality of existing
// embeddings, ignoring the item being replaced. Empty model means the
// store holds no embeddings yet.
func (s *ChunkStore) storedEmbeddingShape(excludeItem string) (string, int) {
	for itemID, chunks := range s.byItem {
		if itemID == excludeItem {
			continue
		}
		for _, c := range chunks {
			if len(c.Embedding) > 0 {
				return c.EmbeddingModel, len(c.Embedding)
			}
		}
	}
	return "", 0
}

// GetChunk retrieves a chunk by ID.
func (s *ChunkStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, chunks := range s.byItem {
		for _, c := range chunks {
			if c.ID == id {
				chunk := c
				return &chunk, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

// GetChunks retrieves an item's chunks ordered by position.
func (s *ChunkStore) GetChunks(_ context.Context, itemID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]domain.Chunk, len(s.byItem[itemID]))
	copy(chunks, s.byItem[itemID])
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Position < chunks[j].Position })
	return chunks, nil
}

// DeleteChunks removes all chunks for an item.
func (s *ChunkStore) DeleteChunks(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byItem, itemID)
	return nil
}

// VectorSearch returns the k nearest chunks by cosine similarity.
func (s *ChunkStore) VectorSearch(_ context.Context, embedding []float32, k int) ([]driven.VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []driven.VectorHit
	for itemID, chunks := range s.byItem {
		for _, c := range chunks {
			if len(c.Embedding) == 0 {
				continue
			}
			sim := domain.CosineSimilarity(embedding, c.Embedding)
			hits = append(hits, driven.VectorHit{ChunkID: c.ID, ItemID: itemID, Similarity: sim})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity == hits[j].Similarity {
			return hits[i].ChunkID < hits[j].ChunkID
		}
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// LexicalSearch returns the k most relevant chunks by term frequency,
// with a bonus for containing the exact query phrase.
func (s *ChunkStore) LexicalSearch(_ context.Context, query string, k int) ([]driven.LexicalHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}
	phrase := strings.ToLower(strings.TrimSpace(query))

	var hits []driven.LexicalHit
	for itemID, chunks := range s.byItem {
		for _, c := range chunks {
			content := strings.ToLower(c.Content)
			score := 0.0
			for _, term := range terms {
				score += float64(strings.Count(content, term))
			}
			if score == 0 {
				continue
			}
			if strings.Contains(content, phrase) {
				score += float64(len(terms)) * 2
			}
			hits = append(hits, driven.LexicalHit{ChunkID: c.ID, ItemID: itemID, Score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ChunkID < hits[j].ChunkID
		}
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
