package graph_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/policypal-ai/voicegraph/graph"
)

type testState struct {
	Count int
	Done  bool
	Trail []string
}

func step(name string) graph.NodeFunc[testState] {
	return func(ctx context.Context, s testState) (testState, error) {
		s.Trail = append(s.Trail, name)
		return s, nil
	}
}

func buildLinear(t *testing.T) *graph.Graph[testState] {
	t.Helper()

	g := graph.New[testState](graph.Config{Name: "test", MaxSteps: 20}, nil)
	if err := g.AddNode("a", step("a")); err != nil {
		t.Fatalf("AddNode(a) failed: %v", err)
	}
	if err := g.AddNode("b", step("b")); err != nil {
		t.Fatalf("AddNode(b) failed: %v", err)
	}
	if err := g.AddEdge("a", "b", "", nil); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	if err := g.SetEntryPoint("a"); err != nil {
		t.Fatalf("SetEntryPoint failed: %v", err)
	}
	if err := g.SetExitPoint("b"); err != nil {
		t.Fatalf("SetExitPoint failed: %v", err)
	}
	return g
}

func TestExecute_LinearPath(t *testing.T) {
	g := buildLinear(t)

	final, err := g.Execute(context.Background(), testState{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := []string{"a", "b"}
	if len(final.Trail) != len(want) {
		t.Fatalf("trail = %v, want %v", final.Trail, want)
	}
	for i := range want {
		if final.Trail[i] != want[i] {
			t.Errorf("trail[%d] = %q, want %q", i, final.Trail[i], want[i])
		}
	}
}

func TestExecute_ConditionalLoop(t *testing.T) {
	g := graph.New[testState](graph.Config{Name: "loop", MaxSteps: 20}, nil)

	g.AddNode("work", graph.NodeFunc[testState](func(ctx context.Context, s testState) (testState, error) {
		s.Count++
		if s.Count >= 3 {
			s.Done = true
		}
		return s, nil
	}))
	g.AddNode("end", step("end"))

	g.AddEdge("work", "end", "done", func(s testState) bool { return s.Done })
	g.AddEdge("work", "work", "continue", nil)
	g.SetEntryPoint("work")
	g.SetExitPoint("end")

	final, err := g.Execute(context.Background(), testState{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if final.Count != 3 {
		t.Errorf("count = %d, want 3", final.Count)
	}
}

func TestExecute_EdgeOrderRespected(t *testing.T) {
	g := graph.New[testState](graph.Config{Name: "order", MaxSteps: 10}, nil)

	g.AddNode("start", step("start"))
	g.AddNode("first", step("first"))
	g.AddNode("second", step("second"))

	// Both predicates pass; registration order decides.
	g.AddEdge("start", "first", "always1", func(s testState) bool { return true })
	g.AddEdge("start", "second", "always2", func(s testState) bool { return true })
	g.SetEntryPoint("start")
	g.SetExitPoint("first")
	g.SetExitPoint("second")

	final, err := g.Execute(context.Background(), testState{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := final.Trail[len(final.Trail)-1]; got != "first" {
		t.Errorf("took edge to %q, want %q", got, "first")
	}
}

func TestExecute_MaxStepsExceeded(t *testing.T) {
	g := graph.New[testState](graph.Config{Name: "spin", MaxSteps: 5}, nil)

	g.AddNode("spin", step("spin"))
	g.AddNode("end", step("end"))
	g.AddEdge("spin", "spin", "", nil)
	g.SetEntryPoint("spin")
	g.SetExitPoint("end")

	_, err := g.Execute(context.Background(), testState{})
	if err == nil {
		t.Fatal("expected max steps error, got nil")
	}

	var execErr *graph.ExecutionError[testState]
	if !errors.As(err, &execErr) {
		t.Fatalf("error type = %T, want *ExecutionError", err)
	}
	if execErr.NodeName != "spin" {
		t.Errorf("failing node = %q, want %q", execErr.NodeName, "spin")
	}
	if len(execErr.Path) != 5 {
		t.Errorf("path length = %d, want 5", len(execErr.Path))
	}
}

func TestExecute_NodeError(t *testing.T) {
	g := graph.New[testState](graph.Config{Name: "fail"}, nil)

	boom := fmt.Errorf("boom")
	g.AddNode("a", graph.NodeFunc[testState](func(ctx context.Context, s testState) (testState, error) {
		return s, boom
	}))
	g.SetEntryPoint("a")
	g.SetExitPoint("a")

	_, err := g.Execute(context.Background(), testState{})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped %v", err, boom)
	}
}

func TestExecute_ContextCancelled(t *testing.T) {
	g := buildLinear(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Execute(ctx, testState{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestExecute_StatePreservedOnCancel(t *testing.T) {
	g := graph.New[testState](graph.Config{Name: "cancel", MaxSteps: 20}, nil)

	ctx, cancel := context.WithCancel(context.Background())

	g.AddNode("work", graph.NodeFunc[testState](func(c context.Context, s testState) (testState, error) {
		s.Count++
		if s.Count == 2 {
			cancel() // abort mid-conversation
		}
		return s, nil
	}))
	g.AddNode("end", step("end"))
	g.AddEdge("work", "end", "done", func(s testState) bool { return s.Done })
	g.AddEdge("work", "work", "", nil)
	g.SetEntryPoint("work")
	g.SetExitPoint("end")

	_, err := g.Execute(ctx, testState{})

	var execErr *graph.ExecutionError[testState]
	if !errors.As(err, &execErr) {
		t.Fatalf("error type = %T, want *ExecutionError", err)
	}
	if execErr.State.Count != 2 {
		t.Errorf("state at cancellation has count %d, want 2 (completed work preserved)", execErr.State.Count)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		build func() *graph.Graph[testState]
	}{
		{
			name: "no nodes",
			build: func() *graph.Graph[testState] {
				return graph.New[testState](graph.Config{Name: "empty"}, nil)
			},
		},
		{
			name: "no entry point",
			build: func() *graph.Graph[testState] {
				g := graph.New[testState](graph.Config{Name: "g"}, nil)
				g.AddNode("a", step("a"))
				g.SetExitPoint("a")
				return g
			},
		},
		{
			name: "no exit points",
			build: func() *graph.Graph[testState] {
				g := graph.New[testState](graph.Config{Name: "g"}, nil)
				g.AddNode("a", step("a"))
				g.SetEntryPoint("a")
				return g
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.build().Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestAddNode_Duplicate(t *testing.T) {
	g := graph.New[testState](graph.Config{Name: "g"}, nil)

	if err := g.AddNode("a", step("a")); err != nil {
		t.Fatalf("first AddNode failed: %v", err)
	}
	if err := g.AddNode("a", step("a")); err == nil {
		t.Error("duplicate AddNode succeeded, want error")
	}
}

func TestAddEdge_UnknownNodes(t *testing.T) {
	g := graph.New[testState](graph.Config{Name: "g"}, nil)
	g.AddNode("a", step("a"))

	if err := g.AddEdge("a", "missing", "", nil); err == nil {
		t.Error("AddEdge to unknown node succeeded, want error")
	}
	if err := g.AddEdge("missing", "a", "", nil); err == nil {
		t.Error("AddEdge from unknown node succeeded, want error")
	}
}
