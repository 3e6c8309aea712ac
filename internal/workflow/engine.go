package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo/internal/logger"
)

// Engine errors.
var (
	// ErrRetriesExhausted indicates a loop exceeded its retry limit and
	// had no exhaustion node to fail over to.
	ErrRetriesExhausted = errors.New("retry limit exceeded")

	// ErrNoRoute indicates no edge predicate matched the state.
	ErrNoRoute = errors.New("no matching edge")

	// ErrUnknownNode indicates a reference to a node that does not exist.
	ErrUnknownNode = errors.New("unknown node")

	// ErrStepLimit indicates the run exceeded the engine's step budget,
	// which points at an unbounded cycle the graph failed to declare.
	ErrStepLimit = errors.New("step limit exceeded")
)

// RunError is the structured error a failed run surfaces: the failing
// node name plus the underlying cause. The state at failure is returned
// alongside it by Run.
type RunError struct {
	// RunID identifies the run.
	RunID string

	// Node is the node that failed.
	Node string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("workflow run %s failed at node %q: %v", e.RunID, e.Node, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

// DefaultMaxSteps bounds a single run. Declared loops are bounded by
// their own retry limits; this is a safety net against undeclared cycles.
const DefaultMaxSteps = 100

// Engine executes a graph. It is stateless across runs and safe for
// concurrent use; each run carries its own state and loop counters.
type Engine[S any] struct {
	graph       *Graph[S]
	checkpoints driven.CheckpointStore
	maxSteps    int
}

// Option configures an engine.
type Option[S any] func(*Engine[S])

// WithCheckpoints enables checkpointing: after each node the engine
// persists (runID, node, state) so an interrupted run can be resumed.
func WithCheckpoints[S any](store driven.CheckpointStore) Option[S] {
	return func(e *Engine[S]) {
		e.checkpoints = store
	}
}

// WithMaxSteps overrides the per-run step budget.
func WithMaxSteps[S any](n int) Option[S] {
	return func(e *Engine[S]) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewEngine creates an engine for the given graph. The graph is
// validated once here rather than on every run.
func NewEngine[S any](graph *Graph[S], opts ...Option[S]) (*Engine[S], error) {
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("graph %s: %w", graph.name, err)
	}

	e := &Engine[S]{
		graph:    graph,
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// envelope is what gets checkpointed: the typed state plus the engine's
// loop counters, so a resumed run keeps honouring retry limits.
type envelope[S any] struct {
	State S              `json:"state"`
	Loops map[string]int `json:"loops"`
}

// Run executes the graph from its start node with a fresh run ID.
// On failure it returns the state at failure and a *RunError.
func (e *Engine[S]) Run(ctx context.Context, initial S) (S, error) {
	return e.run(ctx, uuid.New().String(), e.graph.start, initial, make(map[string]int))
}

// Resume continues an interrupted run from the node after the last
// persisted checkpoint. Requires checkpointing to be enabled.
func (e *Engine[S]) Resume(ctx context.Context, runID string) (S, error) {
	var zero S
	if e.checkpoints == nil {
		return zero, errors.New("resume: checkpointing not enabled")
	}

	cp, err := e.checkpoints.LoadCheckpoint(ctx, runID)
	if err != nil {
		return zero, fmt.Errorf("resume run %s: %w", runID, err)
	}

	var env envelope[S]
	if err := json.Unmarshal(cp.State, &env); err != nil {
		return zero, fmt.Errorf("resume run %s: decode state: %w", runID, err)
	}
	if env.Loops == nil {
		env.Loops = make(map[string]int)
	}

	logger.Info("Workflow %s: resuming run %s after node %q", e.graph.name, runID, cp.Node)

	// Replay starts at the node following the checkpointed one.
	next, failover, err := e.route(cp.Node, env.State, env.Loops)
	if err != nil {
		return env.State, &RunError{RunID: runID, Node: cp.Node, Err: err}
	}
	if failover != "" {
		next = failover
	}
	if next == End {
		e.clearCheckpoint(ctx, runID)
		return env.State, nil
	}

	return e.run(ctx, runID, next, env.State, env.Loops)
}

// run drives the node loop. loops maps loop name to traversal count.
func (e *Engine[S]) run(ctx context.Context, runID, node string, state S, loops map[string]int) (S, error) {
	for step := 0; ; step++ {
		if step >= e.maxSteps {
			return state, &RunError{RunID: runID, Node: node, Err: ErrStepLimit}
		}
		if err := ctx.Err(); err != nil {
			return state, &RunError{RunID: runID, Node: node, Err: err}
		}

		fn, ok := e.graph.nodes[node]
		if !ok {
			return state, &RunError{RunID: runID, Node: node, Err: ErrUnknownNode}
		}

		logger.Debug("Workflow %s: node %q (step %d)", e.graph.name, node, step)

		var err error
		state, err = fn(withAttempts(ctx, loops), state)
		if err != nil {
			return state, &RunError{RunID: runID, Node: node, Err: err}
		}

		e.checkpoint(ctx, runID, node, state, loops)

		next, failover, err := e.route(node, state, loops)
		if err != nil {
			return state, &RunError{RunID: runID, Node: node, Err: err}
		}
		if failover != "" {
			logger.Warn("Workflow %s: loop from %q exhausted, routing to %q", e.graph.name, node, failover)
			next = failover
		}
		if next == End {
			e.clearCheckpoint(ctx, runID)
			logger.Debug("Workflow %s: run %s finished", e.graph.name, runID)
			return state, nil
		}

		node = next
	}
}

// route picks the next node from the current node's edges and applies
// loop bookkeeping. It returns the chosen node, plus a failover node
// when a loop just exhausted and declared one.
func (e *Engine[S]) route(node string, state S, loops map[string]int) (next, failover string, err error) {
	var chosen string
	found := false
	for _, edge := range e.graph.edges[node] {
		if edge.When == nil || edge.When(state) {
			chosen = edge.To
			found = true
			break
		}
	}
	if !found {
		return "", "", ErrNoRoute
	}

	loop, isLoop := e.graph.loops[node+"->"+chosen]
	if !isLoop {
		return chosen, "", nil
	}

	loops[loop.Name]++
	if loops[loop.Name] <= loop.MaxRetries {
		logger.Debug("Workflow %s: loop %q attempt %d/%d", e.graph.name, loop.Name, loops[loop.Name], loop.MaxRetries)
		return chosen, "", nil
	}

	// Fail closed: the cycle edge may not be taken again.
	if loop.OnExhausted == "" {
		return "", "", fmt.Errorf("loop %q: %w", loop.Name, ErrRetriesExhausted)
	}
	return chosen, loop.OnExhausted, nil
}

// checkpoint persists the state after a node, if enabled. Checkpoint
// failures are logged, not fatal: a run should not die because its
// resumption insurance could not be written.
func (e *Engine[S]) checkpoint(ctx context.Context, runID, node string, state S, loops map[string]int) {
	if e.checkpoints == nil {
		return
	}

	data, err := json.Marshal(envelope[S]{State: state, Loops: loops})
	if err != nil {
		logger.Warn("Workflow %s: checkpoint encode failed: %v", e.graph.name, err)
		return
	}
	cp := driven.Checkpoint{
		RunID:   runID,
		Node:    node,
		State:   data,
		SavedAt: time.Now(),
	}
	if err := e.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
		logger.Warn("Workflow %s: checkpoint save failed: %v", e.graph.name, err)
	}
}

func (e *Engine[S]) clearCheckpoint(ctx context.Context, runID string) {
	if e.checkpoints == nil {
		return
	}
	if err := e.checkpoints.DeleteCheckpoint(ctx, runID); err != nil {
		logger.Debug("Workflow %s: checkpoint delete failed: %v", e.graph.name, err)
	}
}

// attemptsKey carries loop counters into nodes via context.
type attemptsKey struct{}

func withAttempts(ctx context.Context, loops map[string]int) context.Context {
	snapshot := make(map[string]int, len(loops))
	for k, v := range loops {
		snapshot[k] = v
	}
	return context.WithValue(ctx, attemptsKey{}, snapshot)
}

// Attempts returns how many times the named loop has been taken in the
// current run. Nodes use this to vary behaviour on retry (e.g. a
// stricter extraction prompt) without owning the bookkeeping.
func Attempts(ctx context.Context, loopName string) int {
	if m, ok := ctx.Value(attemptsKey{}).(map[string]int); ok {
		return m[loopName]
	}
	return 0
}
