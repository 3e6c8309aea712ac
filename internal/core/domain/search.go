package domain

// RankNone marks a chunk absent from one of the fused ranked lists.
const RankNone = -1

// RankedChunk is a fused retrieval result. Per-list ranks are retained
// for explainability.
type RankedChunk struct {
	// Chunk is the retrieved chunk.
	Chunk Chunk

	// FusedScore is the reciprocal rank fusion score.
	FusedScore float64

	// VectorRank is the 0-indexed rank in the vector similarity list,
	// or RankNone if the chunk was not in that list.
	VectorRank int

	// LexicalRank is the 0-indexed rank in the lexical relevance list,
	// or RankNone if the chunk was not in that list.
	LexicalRank int
}

// QueryClass classifies a search query for adaptive retrieval.
type QueryClass string

// Query classes.
const (
	QuerySimple      QueryClass = "simple"
	QueryMultiFacet  QueryClass = "multi-faceted"
	QueryTemporal    QueryClass = "temporal"
)

// SearchResult is a ranked search hit hydrated with its owning item.
type SearchResult struct {
	// ItemID is the owning item.
	ItemID string

	// ItemTitle is the owning item's title.
	ItemTitle string

	// Chunk is the matched chunk.
	Chunk Chunk

	// Score is the fused relevance score.
	Score float64

	// VectorRank and LexicalRank are the per-list ranks before fusion,
	// RankNone when absent from a list.
	VectorRank  int
	LexicalRank int
}

// SearchOutcome is the result of an adaptive search run. NoResults
// distinguishes an explicit empty outcome from an error.
type SearchOutcome struct {
	// Results are the ranked hits, best first.
	Results []SearchResult

	// Class is the detected query class.
	Class QueryClass

	// SubQueries are the decomposed sub-queries for multi-faceted
	// queries, empty otherwise.
	SubQueries []string

	// Expanded reports whether the query was expanded with related
	// terms after a poor first retrieval.
	Expanded bool

	// NoResults is true when retrieval (including expansion) found
	// nothing relevant.
	NoResults bool
}

// ChatResult is the final outcome of one RAG chat turn.
type ChatResult struct {
	// Answer is the generated answer text.
	Answer string

	// Citations are the chunks the answer draws from.
	Citations []Citation

	// Verified reports whether the grounding check passed. When false
	// the answer is surfaced as unverified, never silently presented
	// as grounded.
	Verified bool

	// MessageID is the persisted assistant message.
	MessageID string
}
