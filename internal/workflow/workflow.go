// Package workflow provides a generic executor for typed-state graphs
// with conditional edges, bounded retry loops, and optional
// checkpointing. Nodes are pure functions from state to state; side
// effects (provider calls, storage writes) happen inside nodes, never
// in the engine. The engine owns loop-count bookkeeping so retry limits
// are enforced centrally rather than duplicated per node.
package workflow

import (
	"context"
	"fmt"
)

// End is the terminal pseudo-node. An edge routing to End finishes the
// run successfully.
const End = "__end__"

// NodeFunc is a single graph step: it receives the current state and
// returns the next state.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// Edge routes from one node to another. When is evaluated against the
// state after the source node ran; a nil When always matches. Edges are
// evaluated in the order they were added and the first match wins.
type Edge[S any] struct {
	// To is the destination node name, or End.
	To string

	// When is the routing predicate, nil for unconditional.
	When func(S) bool
}

// Loop declares that the edge From->To is a named retry cycle. The
// engine counts traversals and enforces MaxRetries: once exceeded, the
// run routes to OnExhausted if set, otherwise fails closed with
// ErrRetriesExhausted.
type Loop struct {
	// Name identifies the loop for bookkeeping and logging.
	Name string

	// From and To are the cycle edge's endpoints.
	From string
	To   string

	// MaxRetries is the maximum number of times the cycle edge may be
	// taken. The looped node therefore runs at most MaxRetries+1 times.
	MaxRetries int

	// OnExhausted is the node to route to when the limit is exceeded.
	// Empty means the run fails.
	OnExhausted string
}

// Graph is a named directed graph of state-transforming steps.
type Graph[S any] struct {
	name  string
	start string
	nodes map[string]NodeFunc[S]
	edges map[string][]Edge[S]
	loops map[string]Loop
}

// NewGraph creates an empty graph with the given name and start node.
func NewGraph[S any](name, start string) *Graph[S] {
	return &Graph[S]{
		name:  name,
		start: start,
		nodes: make(map[string]NodeFunc[S]),
		edges: make(map[string][]Edge[S]),
		loops: make(map[string]Loop),
	}
}

// AddNode registers a node under the given name.
func (g *Graph[S]) AddNode(name string, fn NodeFunc[S]) *Graph[S] {
	g.nodes[name] = fn
	return g
}

// AddEdge adds an unconditional edge.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	return g.AddConditionalEdge(from, to, nil)
}

// AddConditionalEdge adds an edge taken when the predicate matches the
// state after from ran.
func (g *Graph[S]) AddConditionalEdge(from, to string, when func(S) bool) *Graph[S] {
	g.edges[from] = append(g.edges[from], Edge[S]{To: to, When: when})
	return g
}

// AddLoop declares a bounded retry cycle. The cycle edge itself must
// also be added with AddEdge or AddConditionalEdge.
func (g *Graph[S]) AddLoop(loop Loop) *Graph[S] {
	g.loops[loop.From+"->"+loop.To] = loop
	return g
}

// Validate checks that the graph is runnable: the start node exists,
// every edge references known nodes, every non-terminal node has at
// least one outgoing edge, and loops reference existing edges.
func (g *Graph[S]) Validate() error {
	if _, ok := g.nodes[g.start]; !ok {
		return fmt.Errorf("%w: start node %q", ErrUnknownNode, g.start)
	}
	for from, edges := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("%w: edge source %q", ErrUnknownNode, from)
		}
		for _, e := range edges {
			if e.To == End {
				continue
			}
			if _, ok := g.nodes[e.To]; !ok {
				return fmt.Errorf("%w: edge target %q", ErrUnknownNode, e.To)
			}
		}
	}
	for key, loop := range g.loops {
		if _, ok := g.nodes[loop.From]; !ok {
			return fmt.Errorf("%w: loop %q source", ErrUnknownNode, key)
		}
		if _, ok := g.nodes[loop.To]; !ok {
			return fmt.Errorf("%w: loop %q target", ErrUnknownNode, key)
		}
		if loop.OnExhausted != "" {
			if _, ok := g.nodes[loop.OnExhausted]; !ok {
				return fmt.Errorf("%w: loop %q exhaustion target", ErrUnknownNode, key)
			}
		}
	}
	for name := range g.nodes {
		if len(g.edges[name]) == 0 {
			return fmt.Errorf("node %q has no outgoing edges", name)
		}
	}
	return nil
}

// Name returns the graph name.
func (g *Graph[S]) Name() string {
	return g.name
}
