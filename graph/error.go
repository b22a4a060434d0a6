package graph

import "fmt"

// ExecutionError captures rich context when graph execution fails.
//
// It carries which node failed, the state at failure, and the full execution
// path leading there. A node failure surfacing as ExecutionError is a defect
// in the workflow itself, not a degraded external call; degradable outcomes
// are absorbed inside nodes as values.
type ExecutionError[S any] struct {
	NodeName string
	State    S
	Path     []string
	Err      error
}

// Error implements the error interface.
func (e *ExecutionError[S]) Error() string {
	return fmt.Sprintf("execution failed at node %s: %v", e.NodeName, e.Err)
}

// Unwrap enables error unwrapping for errors.Is and errors.As.
func (e *ExecutionError[S]) Unwrap() error {
	return e.Err
}
