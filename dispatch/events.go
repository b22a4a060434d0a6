package dispatch

import "github.com/policypal-ai/voicegraph/observability"

// Dispatch event types. EventExhausted is the critical signal that a
// capability is fully unavailable.
const (
	EventAttemptFailed observability.EventType = "dispatch.attempt.failed"
	EventFallback      observability.EventType = "dispatch.fallback"
	EventExhausted     observability.EventType = "dispatch.exhausted"
)
