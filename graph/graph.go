// Package graph implements a directed state-machine engine for conversation
// workflows. A Graph is built from named nodes and predicate-guarded edges,
// with a single entry point and one or more exit points; execution walks the
// graph sequentially, threading a typed state value through each node.
//
// The engine is generic over the state type: callers define an explicit state
// struct and nodes consume and return it by value, so every transition is
// visible in the type system rather than hidden in a shared dictionary.
//
//	g := graph.New[CallState](graph.Config{Name: "call", MaxSteps: 50}, observer)
//	g.AddNode("listen", listenNode)
//	g.AddNode("end", endNode)
//	g.AddEdge("listen", "end", "shouldEnd", func(s CallState) bool { return s.ShouldEnd })
//	g.SetEntryPoint("listen")
//	g.SetExitPoint("end")
//	final, err := g.Execute(ctx, initial)
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/policypal-ai/voicegraph/observability"
)

// Node represents a computation step in a graph. Nodes receive state, perform
// work (including blocking external calls), and return updated state.
type Node[S any] interface {
	Execute(ctx context.Context, state S) (S, error)
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

func (f NodeFunc[S]) Execute(ctx context.Context, state S) (S, error) {
	return f(ctx, state)
}

// Predicate evaluates state to decide whether an edge can be traversed.
// A nil predicate means the edge is unconditional.
type Predicate[S any] func(state S) bool

// Edge is a transition between two nodes, optionally guarded by a predicate.
type Edge[S any] struct {
	From      string
	To        string
	Name      string // describes the predicate for event metadata
	Predicate Predicate[S]
}

// Config holds graph construction parameters.
type Config struct {
	// Name identifies the graph in event metadata.
	Name string
	// MaxSteps bounds execution length; a graph with a loop needs a ceiling
	// so a broken predicate cannot spin forever.
	MaxSteps int
}

const defaultMaxSteps = 100

// Graph is a directed graph of nodes and edges executed sequentially.
// Build the graph once at startup; Execute may be called concurrently with
// independent state values.
type Graph[S any] struct {
	name       string
	nodes      map[string]Node[S]
	edges      map[string][]Edge[S]
	entryPoint string
	exitPoints map[string]bool
	maxSteps   int
	observer   observability.Observer
}

// New creates an empty graph. A nil observer is replaced with NoOpObserver.
func New[S any](cfg Config, observer observability.Observer) *Graph[S] {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	return &Graph[S]{
		name:       cfg.Name,
		nodes:      make(map[string]Node[S]),
		edges:      make(map[string][]Edge[S]),
		exitPoints: make(map[string]bool),
		maxSteps:   maxSteps,
		observer:   observer,
	}
}

// Name returns the graph identifier used in event metadata.
func (g *Graph[S]) Name() string {
	return g.name
}

// AddNode registers a computation step. Node names must be unique.
func (g *Graph[S]) AddNode(name string, node Node[S]) error {
	if name == "" {
		return fmt.Errorf("node name cannot be empty")
	}
	if node == nil {
		return fmt.Errorf("node cannot be nil")
	}
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("node %s already exists", name)
	}

	g.nodes[name] = node
	return nil
}

// AddEdge creates a transition between two existing nodes. Multiple edges from
// the same node are evaluated in registration order; the first whose predicate
// passes (or whose predicate is nil) is taken.
func (g *Graph[S]) AddEdge(from, to, name string, predicate Predicate[S]) error {
	if from == "" || to == "" {
		return fmt.Errorf("edge endpoints cannot be empty")
	}
	if _, exists := g.nodes[from]; !exists {
		return fmt.Errorf("from node %s does not exist", from)
	}
	if _, exists := g.nodes[to]; !exists {
		return fmt.Errorf("to node %s does not exist", to)
	}

	g.edges[from] = append(g.edges[from], Edge[S]{
		From:      from,
		To:        to,
		Name:      name,
		Predicate: predicate,
	})
	return nil
}

// SetEntryPoint defines the starting node. Only one entry point is allowed.
func (g *Graph[S]) SetEntryPoint(node string) error {
	if node == "" {
		return fmt.Errorf("entry point cannot be empty")
	}
	if g.entryPoint != "" {
		return fmt.Errorf("entry point already set to %s", g.entryPoint)
	}
	if _, exists := g.nodes[node]; !exists {
		return fmt.Errorf("entry point node %s does not exist", node)
	}

	g.entryPoint = node
	return nil
}

// SetExitPoint registers a terminal node. Execution stops after an exit point
// node completes. Multiple exit points are supported.
func (g *Graph[S]) SetExitPoint(node string) error {
	if node == "" {
		return fmt.Errorf("exit point cannot be empty")
	}
	if _, exists := g.nodes[node]; !exists {
		return fmt.Errorf("exit point node %s does not exist", node)
	}

	g.exitPoints[node] = true
	return nil
}

// Validate checks graph structure: at least one node, an entry point, and at
// least one exit point. Called internally by Execute.
func (g *Graph[S]) Validate() error {
	if len(g.nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}
	if g.entryPoint == "" {
		return fmt.Errorf("entry point not set")
	}
	if len(g.exitPoints) == 0 {
		return fmt.Errorf("no exit points set")
	}
	return nil
}

// Execute walks the graph from the entry point with the given state.
//
// Each step executes the current node, then evaluates its outgoing edges in
// order to pick the next node. Execution ends when an exit point node
// completes. The context is checked before every node so a cancelled session
// stops at a node boundary with its state intact.
//
// Returns an ExecutionError carrying the failing node, the state at failure,
// and the execution path.
func (g *Graph[S]) Execute(ctx context.Context, initial S) (S, error) {
	if err := g.Validate(); err != nil {
		return initial, fmt.Errorf("graph validation failed: %w", err)
	}

	g.observer.OnEvent(ctx, observability.Event{
		Type:      EventGraphStart,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    g.name,
		Data: map[string]any{
			"entry_point": g.entryPoint,
			"exit_points": len(g.exitPoints),
		},
	})

	current := g.entryPoint
	state := initial
	steps := 0
	visited := make(map[string]int)
	path := make([]string, 0, g.maxSteps)

	for {
		if err := ctx.Err(); err != nil {
			return state, &ExecutionError[S]{
				NodeName: current,
				State:    state,
				Path:     path,
				Err:      fmt.Errorf("execution cancelled: %w", err),
			}
		}

		steps++
		if steps > g.maxSteps {
			return state, &ExecutionError[S]{
				NodeName: current,
				State:    state,
				Path:     path,
				Err:      fmt.Errorf("max steps (%d) exceeded", g.maxSteps),
			}
		}

		visited[current]++
		path = append(path, current)

		node, exists := g.nodes[current]
		if !exists {
			return state, &ExecutionError[S]{
				NodeName: current,
				State:    state,
				Path:     path,
				Err:      fmt.Errorf("node %s not found", current),
			}
		}

		g.observer.OnEvent(ctx, observability.Event{
			Type:      EventNodeStart,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    g.name,
			Data: map[string]any{
				"node":        current,
				"step":        steps,
				"visit_count": visited[current],
			},
		})

		newState, err := node.Execute(ctx, state)

		g.observer.OnEvent(ctx, observability.Event{
			Type:      EventNodeComplete,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    g.name,
			Data: map[string]any{
				"node":  current,
				"step":  steps,
				"error": err != nil,
			},
		})

		if err != nil {
			return state, &ExecutionError[S]{
				NodeName: current,
				State:    state,
				Path:     path,
				Err:      fmt.Errorf("node execution failed: %w", err),
			}
		}

		state = newState

		if g.exitPoints[current] {
			g.observer.OnEvent(ctx, observability.Event{
				Type:      EventGraphComplete,
				Level:     observability.LevelInfo,
				Timestamp: time.Now(),
				Source:    g.name,
				Data: map[string]any{
					"exit_point":  current,
					"steps":       steps,
					"path_length": len(path),
				},
			})
			return state, nil
		}

		edges, hasEdges := g.edges[current]
		if !hasEdges {
			return state, &ExecutionError[S]{
				NodeName: current,
				State:    state,
				Path:     path,
				Err:      fmt.Errorf("node %s has no outgoing edges and is not an exit point", current),
			}
		}

		nextNode := ""
		for i, edge := range edges {
			if edge.Predicate == nil || edge.Predicate(state) {
				nextNode = edge.To

				g.observer.OnEvent(ctx, observability.Event{
					Type:      EventEdgeTransition,
					Level:     observability.LevelVerbose,
					Timestamp: time.Now(),
					Source:    g.name,
					Data: map[string]any{
						"from":       edge.From,
						"to":         edge.To,
						"edge_index": i,
						"edge_name":  edge.Name,
					},
				})
				break
			}
		}

		if nextNode == "" {
			return state, &ExecutionError[S]{
				NodeName: current,
				State:    state,
				Path:     path,
				Err:      fmt.Errorf("no valid transition from node %s", current),
			}
		}

		current = nextNode
	}
}
