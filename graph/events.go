package graph

import "github.com/policypal-ai/voicegraph/observability"

// Graph execution event types.
const (
	EventGraphStart     observability.EventType = "graph.start"
	EventGraphComplete  observability.EventType = "graph.complete"
	EventNodeStart      observability.EventType = "node.start"
	EventNodeComplete   observability.EventType = "node.complete"
	EventEdgeTransition observability.EventType = "edge.transition"
)
