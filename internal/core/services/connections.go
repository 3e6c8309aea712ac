package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driving"
	"github.com/mnemo-labs/mnemo/internal/logger"
	"github.com/mnemo-labs/mnemo/internal/workflow"
)

// Connection scoring defaults.
const (
	DefaultSimilarityWeight = 0.5
	DefaultEntityWeight     = 0.35
	DefaultTemporalWeight   = 0.15

	// DefaultMinStrength is the minimum combined score a connection
	// must reach to be stored.
	DefaultMinStrength = 0.3

	// DefaultTemporalWindow is how close in time two items must be
	// captured to count as temporally related.
	DefaultTemporalWindow = 7 * 24 * time.Hour

	// DefaultSimilarNeighbours caps how many nearest items the
	// similarity signal considers.
	DefaultSimilarNeighbours = 10
)

// ConnectorConfig tunes connection discovery.
type ConnectorConfig struct {
	SimilarityWeight float64
	EntityWeight     float64
	TemporalWeight   float64
	MinStrength      float64
	TemporalWindow   time.Duration
	Neighbours       int
}

// DefaultConnectorConfig returns the default scoring configuration.
func DefaultConnectorConfig() ConnectorConfig {
	return ConnectorConfig{
		SimilarityWeight: DefaultSimilarityWeight,
		EntityWeight:     DefaultEntityWeight,
		TemporalWeight:   DefaultTemporalWeight,
		MinStrength:      DefaultMinStrength,
		TemporalWindow:   DefaultTemporalWindow,
		Neighbours:       DefaultSimilarNeighbours,
	}
}

// connState is the typed state flowing through the discovery graph.
type connState struct {
	ItemID string `json:"item_id"`

	// Signals maps candidate item ID to its per-signal values.
	Signals map[string]map[domain.Signal]float64 `json:"signals"`

	Connections []domain.Connection `json:"connections"`
}

// Connector runs connection discovery per item: find-similar ->
// match-entities -> temporal-cluster -> score -> store. Idempotent:
// re-running replaces the item's prior connections.
type Connector struct {
	items       driven.ItemStore
	chunks      driven.ChunkStore
	connections driven.ConnectionStore
	cfg         ConnectorConfig
	engine      *workflow.Engine[connState]
}

var _ driving.ConnectionService = (*Connector)(nil)

// NewConnector creates the connection discovery service.
func NewConnector(items driven.ItemStore, chunks driven.ChunkStore, connections driven.ConnectionStore, cfg ConnectorConfig) (*Connector, error) {
	if cfg.Neighbours <= 0 {
		cfg.Neighbours = DefaultSimilarNeighbours
	}
	if cfg.TemporalWindow <= 0 {
		cfg.TemporalWindow = DefaultTemporalWindow
	}

	c := &Connector{
		items:       items,
		chunks:      chunks,
		connections: connections,
		cfg:         cfg,
	}

	graph := workflow.NewGraph[connState]("connections", "find-similar").
		AddNode("find-similar", c.findSimilarNode).
		AddNode("match-entities", c.matchEntitiesNode).
		AddNode("temporal-cluster", c.temporalClusterNode).
		AddNode("score", c.scoreNode).
		AddNode("store", c.storeNode).
		AddEdge("find-similar", "match-entities").
		AddEdge("match-entities", "temporal-cluster").
		AddEdge("temporal-cluster", "score").
		AddEdge("score", "store").
		AddEdge("store", workflow.End)

	engine, err := workflow.NewEngine(graph)
	if err != nil {
		return nil, err
	}
	c.engine = engine
	return c, nil
}

// DiscoverConnections finds and scores relationships for an item.
func (c *Connector) DiscoverConnections(ctx context.Context, itemID string) error {
	if _, err := c.items.GetItem(ctx, itemID); err != nil {
		return fmt.Errorf("load item %s: %w", itemID, err)
	}

	logger.Section(fmt.Sprintf("Discovering connections for %s", itemID))
	_, err := c.engine.Run(ctx, connState{
		ItemID:  itemID,
		Signals: make(map[string]map[domain.Signal]float64),
	})
	return err
}

// ListConnections returns connections involving an item, strongest first.
func (c *Connector) ListConnections(ctx context.Context, itemID string) ([]domain.Connection, error) {
	return c.connections.ListConnections(ctx, itemID)
}

func (s *connState) signal(targetID string, sig domain.Signal, value float64) {
	if value <= 0 {
		return
	}
	if s.Signals[targetID] == nil {
		s.Signals[targetID] = make(map[domain.Signal]float64)
	}
	s.Signals[targetID][sig] = value
}

// findSimilarNode scores embedding-centroid similarity against the
// nearest completed items.
func (c *Connector) findSimilarNode(ctx context.Context, s connState) (connState, error) {
	centroid, err := c.itemCentroid(ctx, s.ItemID)
	if err != nil {
		return s, err
	}
	if centroid == nil {
		return s, nil
	}

	others, err := c.otherCompletedItems(ctx, s.ItemID)
	if err != nil {
		return s, err
	}

	type neighbour struct {
		id  string
		sim float64
	}
	var neighbours []neighbour
	for _, other := range others {
		otherCentroid, err := c.itemCentroid(ctx, other.ID)
		if err != nil {
			return s, err
		}
		if otherCentroid == nil {
			continue
		}
		neighbours = append(neighbours, neighbour{other.ID, domain.CosineSimilarity(centroid, otherCentroid)})
	}

	sort.Slice(neighbours, func(i, j int) bool {
		if neighbours[i].sim == neighbours[j].sim {
			return neighbours[i].id < neighbours[j].id
		}
		return neighbours[i].sim > neighbours[j].sim
	})
	if len(neighbours) > c.cfg.Neighbours {
		neighbours = neighbours[:c.cfg.Neighbours]
	}

	for _, n := range neighbours {
		s.signal(n.id, domain.SignalSimilarity, n.sim)
	}
	return s, nil
}

// matchEntitiesNode scores shared named entities from extracted
// metadata. The overlap is normalised by the smaller entity set.
func (c *Connector) matchEntitiesNode(ctx context.Context, s connState) (connState, error) {
	item, err := c.items.GetItem(ctx, s.ItemID)
	if err != nil {
		return s, err
	}
	if item.Metadata == nil || len(item.Metadata.Entities) == 0 {
		return s, nil
	}

	others, err := c.otherCompletedItems(ctx, s.ItemID)
	if err != nil {
		return s, err
	}

	for _, other := range others {
		if other.Metadata == nil || len(other.Metadata.Entities) == 0 {
			continue
		}
		shared := item.SharedEntities(&other)
		if len(shared) == 0 {
			continue
		}
		smaller := len(item.Metadata.Entities)
		if len(other.Metadata.Entities) < smaller {
			smaller = len(other.Metadata.Entities)
		}
		s.signal(other.ID, domain.SignalSharedEntity, float64(len(shared))/float64(smaller))
	}
	return s, nil
}

// temporalClusterNode scores capture-time proximity inside the window.
func (c *Connector) temporalClusterNode(ctx context.Context, s connState) (connState, error) {
	item, err := c.items.GetItem(ctx, s.ItemID)
	if err != nil {
		return s, err
	}

	others, err := c.otherCompletedItems(ctx, s.ItemID)
	if err != nil {
		return s, err
	}

	for _, other := range others {
		gap := math.Abs(item.CreatedAt.Sub(other.CreatedAt).Seconds())
		window := c.cfg.TemporalWindow.Seconds()
		if gap > window {
			continue
		}
		s.signal(other.ID, domain.SignalTemporal, 1-gap/window)
	}
	return s, nil
}

// scoreNode combines signals into a strength per candidate.
func (c *Connector) scoreNode(_ context.Context, s connState) (connState, error) {
	now := time.Now()
	for targetID, signals := range s.Signals {
		strength := c.cfg.SimilarityWeight*signals[domain.SignalSimilarity] +
			c.cfg.EntityWeight*signals[domain.SignalSharedEntity] +
			c.cfg.TemporalWeight*signals[domain.SignalTemporal]
		if strength < c.cfg.MinStrength {
			continue
		}
		s.Connections = append(s.Connections, domain.Connection{
			SourceID:  s.ItemID,
			TargetID:  targetID,
			Strength:  strength,
			Signals:   signals,
			CreatedAt: now,
		})
	}

	sort.Slice(s.Connections, func(i, j int) bool {
		if s.Connections[i].Strength == s.Connections[j].Strength {
			return s.Connections[i].TargetID < s.Connections[j].TargetID
		}
		return s.Connections[i].Strength > s.Connections[j].Strength
	})
	logger.Info("Scored %d connections above threshold", len(s.Connections))
	return s, nil
}

// storeNode replaces the item's prior connections wholesale.
func (c *Connector) storeNode(ctx context.Context, s connState) (connState, error) {
	if err := c.connections.ReplaceConnections(ctx, s.ItemID, s.Connections); err != nil {
		return s, fmt.Errorf("store connections: %w", err)
	}
	return s, nil
}

// itemCentroid averages an item's chunk embeddings. Nil when the item
// has no embedded chunks.
func (c *Connector) itemCentroid(ctx context.Context, itemID string) ([]float32, error) {
	chunks, err := c.chunks.GetChunks(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("chunks for %s: %w", itemID, err)
	}
	vectors := make([][]float32, 0, len(chunks))
	for _, ch := range chunks {
		vectors = append(vectors, ch.Embedding)
	}
	return domain.Centroid(vectors), nil
}

func (c *Connector) otherCompletedItems(ctx context.Context, itemID string) ([]domain.Item, error) {
	all, err := c.items.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	var others []domain.Item
	for _, item := range all {
		if item.ID == itemID || item.Status != domain.StatusCompleted {
			continue
		}
		others = append(others, item)
	}
	return others, nil
}
