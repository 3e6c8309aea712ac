// Package services contains the core application services: the hybrid
// retriever and the processing, search, chat, and connection pipelines.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo/internal/logger"
)

const (
	// rrfK dampens the impact of high ranks in reciprocal rank fusion.
	rrfK = 60

	// minCandidates is the floor on how many candidates each list
	// contributes before fusion.
	minCandidates = 20
)

// Retriever fuses vector similarity and lexical relevance with
// reciprocal rank fusion. Both searches run in parallel; if one side
// fails the other still produces results.
type Retriever struct {
	provider driven.InferenceProvider
	chunks   driven.ChunkStore
}

// NewRetriever creates a hybrid retriever.
func NewRetriever(provider driven.InferenceProvider, chunks driven.ChunkStore) *Retriever {
	return &Retriever{provider: provider, chunks: chunks}
}

// Retrieve returns the top chunks for a query, fused across both
// retrieval paths and hydrated with content. Results are deterministic:
// ties on fused score break by vector rank, then chunk ID.
func (r *Retriever) Retrieve(ctx context.Context, query string, limit int) ([]domain.RankedChunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidInput)
	}

	pool := limit * 2
	if pool < minCandidates {
		pool = minCandidates
	}

	var (
		wg          sync.WaitGroup
		vectorHits  []driven.VectorHit
		lexicalHits []driven.LexicalHit
		vectorErr   error
		lexicalErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		embedding, err := r.provider.Embed(ctx, query)
		if err != nil {
			vectorErr = fmt.Errorf("embed query: %w", err)
			return
		}
		vectorHits, vectorErr = r.chunks.VectorSearch(ctx, embedding, pool)
	}()
	go func() {
		defer wg.Done()
		lexicalHits, lexicalErr = r.chunks.LexicalSearch(ctx, query, pool)
	}()
	wg.Wait()

	if vectorErr != nil && lexicalErr != nil {
		return nil, fmt.Errorf("both retrieval paths failed: vector: %v; lexical: %w", vectorErr, lexicalErr)
	}
	if vectorErr != nil {
		logger.Warn("vector search degraded, using lexical only: %v", vectorErr)
	}
	if lexicalErr != nil {
		logger.Warn("lexical search degraded, using vector only: %v", lexicalErr)
	}

	fused := FuseRanked(vectorHits, lexicalHits)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	return r.hydrate(ctx, fused)
}

// FuseRanked merges the two ranked lists with reciprocal rank fusion.
// Each chunk scores sum(1/(k+rank+1)) over the lists it appears in,
// with 0-indexed ranks. Per-list ranks are preserved on the result.
func FuseRanked(vectorHits []driven.VectorHit, lexicalHits []driven.LexicalHit) []domain.RankedChunk {
	type entry struct {
		itemID      string
		vectorRank  int
		lexicalRank int
	}
	entries := make(map[string]*entry)

	at := func(chunkID, itemID string) *entry {
		e, ok := entries[chunkID]
		if !ok {
			e = &entry{itemID: itemID, vectorRank: domain.RankNone, lexicalRank: domain.RankNone}
			entries[chunkID] = e
		}
		return e
	}

	for rank, hit := range vectorHits {
		at(hit.ChunkID, hit.ItemID).vectorRank = rank
	}
	for rank, hit := range lexicalHits {
		at(hit.ChunkID, hit.ItemID).lexicalRank = rank
	}

	fused := make([]domain.RankedChunk, 0, len(entries))
	for chunkID, e := range entries {
		score := 0.0
		if e.vectorRank != domain.RankNone {
			score += 1.0 / float64(rrfK+e.vectorRank+1)
		}
		if e.lexicalRank != domain.RankNone {
			score += 1.0 / float64(rrfK+e.lexicalRank+1)
		}
		fused = append(fused, domain.RankedChunk{
			Chunk:       domain.Chunk{ID: chunkID, ItemID: e.itemID},
			FusedScore:  score,
			VectorRank:  e.vectorRank,
			LexicalRank: e.lexicalRank,
		})
	}

	sortRanked(fused)
	return fused
}

// sortRanked orders fused results best first: by fused score, then by
// vector rank (a present rank outranks an absent one, lower wins), then
// by chunk ID for determinism.
func sortRanked(ranked []domain.RankedChunk) {
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].FusedScore != ranked[j].FusedScore {
			return ranked[i].FusedScore > ranked[j].FusedScore
		}
		vi, vj := ranked[i].VectorRank, ranked[j].VectorRank
		if vi != vj {
			if vi == domain.RankNone {
				return false
			}
			if vj == domain.RankNone {
				return true
			}
			return vi < vj
		}
		return ranked[i].Chunk.ID < ranked[j].Chunk.ID
	})
}

// hydrate loads full chunk content for fused results. A chunk deleted
// between ranking and hydration is dropped, not an error.
func (r *Retriever) hydrate(ctx context.Context, ranked []domain.RankedChunk) ([]domain.RankedChunk, error) {
	out := make([]domain.RankedChunk, 0, len(ranked))
	for _, rc := range ranked {
		chunk, err := r.chunks.GetChunk(ctx, rc.Chunk.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("hydrate chunk %s: %w", rc.Chunk.ID, err)
		}
		rc.Chunk = *chunk
		out = append(out, rc)
	}
	return out, nil
}
