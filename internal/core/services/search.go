package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driving"
	"github.com/mnemo-labs/mnemo/internal/logger"
	"github.com/mnemo-labs/mnemo/internal/workflow"
)

const (
	// DefaultSearchLimit is used when the caller passes limit <= 0.
	DefaultSearchLimit = 10

	// DefaultPoorScoreThreshold marks a retrieval as poor when its top
	// fused score falls below it. A rank-0 hit in a single list scores
	// 1/61, comfortably above this.
	DefaultPoorScoreThreshold = 0.01

	// expandRetryLoop names the evaluate->expand retry cycle.
	expandRetryLoop = "expand-retry"
)

const expandSystemPrompt = `You expand search queries. Given a query,
reply with 3-5 additional synonyms or closely related terms, separated
by spaces, and nothing else.`

// searchState is the typed state flowing through the search graph.
type searchState struct {
	Query    string `json:"query"`
	Original string `json:"original"`
	Limit    int    `json:"limit"`

	Class      domain.QueryClass    `json:"class"`
	SubQueries []string             `json:"sub_queries"`
	Ranked     []domain.RankedChunk `json:"ranked"`
	Poor       bool                 `json:"poor"`
	Expanded   bool                 `json:"expanded"`
	NoResults  bool                 `json:"no_results"`
}

// Searcher runs the adaptive search pipeline: analyze -> (decompose) ->
// retrieve -> evaluate -> (expand, one retry) -> return.
type Searcher struct {
	retriever *Retriever
	provider  driven.InferenceProvider
	items     driven.ItemStore
	threshold float64
	engine    *workflow.Engine[searchState]
}

var _ driving.SearchService = (*Searcher)(nil)

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithPoorScoreThreshold overrides the poor-retrieval score threshold.
func WithPoorScoreThreshold(v float64) SearcherOption {
	return func(s *Searcher) {
		if v > 0 {
			s.threshold = v
		}
	}
}

// NewSearcher creates the adaptive search service.
func NewSearcher(retriever *Retriever, provider driven.InferenceProvider, items driven.ItemStore, opts ...SearcherOption) (*Searcher, error) {
	s := &Searcher{
		retriever: retriever,
		provider:  provider,
		items:     items,
		threshold: DefaultPoorScoreThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}

	graph := workflow.NewGraph[searchState]("search", "analyze").
		AddNode("analyze", s.analyzeNode).
		AddNode("decompose", s.decomposeNode).
		AddNode("retrieve", s.retrieveNode).
		AddNode("evaluate", s.evaluateNode).
		AddNode("expand", s.expandNode).
		AddConditionalEdge("analyze", "decompose", func(st searchState) bool { return st.Class == domain.QueryMultiFacet }).
		AddEdge("analyze", "retrieve").
		AddEdge("decompose", "retrieve").
		AddEdge("retrieve", "evaluate").
		AddConditionalEdge("evaluate", "expand", func(st searchState) bool { return st.Poor && !st.Expanded }).
		AddEdge("evaluate", workflow.End).
		AddEdge("expand", "retrieve").
		AddLoop(workflow.Loop{
			Name:       expandRetryLoop,
			From:       "evaluate",
			To:         "expand",
			MaxRetries: 1,
		})

	engine, err := workflow.NewEngine(graph)
	if err != nil {
		return nil, err
	}
	s.engine = engine
	return s, nil
}

// Search runs the adaptive search pipeline.
func (s *Searcher) Search(ctx context.Context, query string, limit int) (*domain.SearchOutcome, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	logger.Section(fmt.Sprintf("Search: %q", query))

	final, err := s.engine.Run(ctx, searchState{Query: query, Original: query, Limit: limit})
	if err != nil {
		return nil, err
	}

	outcome := &domain.SearchOutcome{
		Class:      final.Class,
		SubQueries: final.SubQueries,
		Expanded:   final.Expanded,
		NoResults:  final.NoResults,
	}
	if final.NoResults {
		return outcome, nil
	}

	titles := make(map[string]string)
	for _, rc := range final.Ranked {
		title, ok := titles[rc.Chunk.ItemID]
		if !ok {
			if item, err := s.items.GetItem(ctx, rc.Chunk.ItemID); err == nil {
				title = item.Title
			}
			titles[rc.Chunk.ItemID] = title
		}
		outcome.Results = append(outcome.Results, domain.SearchResult{
			ItemID:      rc.Chunk.ItemID,
			ItemTitle:   title,
			Chunk:       rc.Chunk,
			Score:       rc.FusedScore,
			VectorRank:  rc.VectorRank,
			LexicalRank: rc.LexicalRank,
		})
	}
	return outcome, nil
}

// analyzeNode classifies the query by heuristic.
func (s *Searcher) analyzeNode(_ context.Context, st searchState) (searchState, error) {
	st.Class = ClassifyQuery(st.Query)
	logger.Debug("Query classified as %s", st.Class)
	return st, nil
}

// decomposeNode splits a multi-faceted query into sub-queries. A split
// producing fewer than two facets falls back to the whole query.
func (s *Searcher) decomposeNode(_ context.Context, st searchState) (searchState, error) {
	subs := DecomposeQuery(st.Query)
	if len(subs) >= 2 {
		st.SubQueries = subs
		logger.Info("Decomposed into %d sub-queries", len(subs))
	}
	return st, nil
}

// retrieveNode runs the hybrid retriever, once per sub-query for
// decomposed queries, and merges.
func (s *Searcher) retrieveNode(ctx context.Context, st searchState) (searchState, error) {
	if len(st.SubQueries) < 2 {
		ranked, err := s.retriever.Retrieve(ctx, st.Query, st.Limit)
		if err != nil {
			return st, err
		}
		st.Ranked = ranked
		return st, nil
	}

	lists := make([][]domain.RankedChunk, 0, len(st.SubQueries))
	for _, sub := range st.SubQueries {
		ranked, err := s.retriever.Retrieve(ctx, sub, st.Limit)
		if err != nil {
			return st, fmt.Errorf("sub-query %q: %w", sub, err)
		}
		lists = append(lists, ranked)
	}
	st.Ranked = MergeRanked(lists, st.Limit)
	return st, nil
}

// evaluateNode judges retrieval quality and settles the final outcome
// once expansion is spent.
func (s *Searcher) evaluateNode(_ context.Context, st searchState) (searchState, error) {
	st.Poor = len(st.Ranked) == 0 || st.Ranked[0].FusedScore < s.threshold
	if st.Poor && st.Expanded && len(st.Ranked) == 0 {
		st.NoResults = true
	}
	if st.Poor {
		logger.Debug("Retrieval judged poor (results=%d)", len(st.Ranked))
	}
	return st, nil
}

// expandNode widens the query with provider-suggested related terms.
// A provider failure here degrades to retrying the original query
// rather than failing the search.
func (s *Searcher) expandNode(ctx context.Context, st searchState) (searchState, error) {
	st.Expanded = true

	var expansion string
	err := retryProvider(ctx, func() error {
		var chatErr error
		expansion, chatErr = s.provider.Chat(ctx, []driven.ChatMessage{{Role: "user", Content: st.Original}}, expandSystemPrompt)
		return chatErr
	})
	if err != nil {
		logger.Warn("Query expansion unavailable: %v", err)
		return st, nil
	}

	expansion = strings.TrimSpace(expansion)
	if expansion != "" {
		st.Query = st.Original + " " + expansion
		logger.Info("Expanded query: %q", st.Query)
	}
	return st, nil
}

// ClassifyQuery classifies a query as simple, multi-faceted, or
// temporal by heuristic.
func ClassifyQuery(query string) domain.QueryClass {
	lower := strings.ToLower(query)

	if strings.Count(query, "?") > 1 {
		return domain.QueryMultiFacet
	}
	for _, conj := range []string{" and ", " vs ", " versus ", "; "} {
		if strings.Contains(lower, conj) {
			return domain.QueryMultiFacet
		}
	}

	temporal := []string{
		"yesterday", "today", "last week", "last month", "last year",
		"this week", "this month", "recently", "ago",
		"january", "february", "march", "april", "may", "june", "july",
		"august", "september", "october", "november", "december",
	}
	for _, word := range temporal {
		if strings.Contains(lower, word) {
			return domain.QueryTemporal
		}
	}

	return domain.QuerySimple
}

// DecomposeQuery splits a multi-faceted query into facet sub-queries.
func DecomposeQuery(query string) []string {
	parts := []string{query}
	for _, sep := range []string{"?", ";", " and ", " vs ", " versus "} {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}

	var subs []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			subs = append(subs, p)
		}
	}
	return subs
}

// MergeRanked combines per-sub-query fused lists by summing fused
// scores per chunk and keeping the best per-list ranks. Ties break by
// chunk ID for determinism.
func MergeRanked(lists [][]domain.RankedChunk, limit int) []domain.RankedChunk {
	merged := make(map[string]domain.RankedChunk)
	for _, list := range lists {
		for _, rc := range list {
			prev, ok := merged[rc.Chunk.ID]
			if !ok {
				merged[rc.Chunk.ID] = rc
				continue
			}
			prev.FusedScore += rc.FusedScore
			prev.VectorRank = betterRank(prev.VectorRank, rc.VectorRank)
			prev.LexicalRank = betterRank(prev.LexicalRank, rc.LexicalRank)
			merged[rc.Chunk.ID] = prev
		}
	}

	out := make([]domain.RankedChunk, 0, len(merged))
	for _, rc := range merged {
		out = append(out, rc)
	}
	sortRanked(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func betterRank(a, b int) int {
	if a == domain.RankNone {
		return b
	}
	if b == domain.RankNone {
		return a
	}
	if b < a {
		return b
	}
	return a
}
