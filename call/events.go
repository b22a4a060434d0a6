package call

import "github.com/policypal-ai/voicegraph/observability"

// Event types emitted by the conversation engine.
const (
	EventSessionStarted        observability.EventType = "call.session_started"
	EventSessionEnded          observability.EventType = "call.session_ended"
	EventTranscriptionDegraded observability.EventType = "call.transcription_degraded"
	EventSynthesisDegraded     observability.EventType = "call.synthesis_degraded"
	EventRetrievalFailed       observability.EventType = "call.retrieval_failed"
	EventSegmentDropped        observability.EventType = "call.segment_dropped"
	EventPlaybackFailed        observability.EventType = "call.playback_failed"
	EventArchiveSkipped        observability.EventType = "call.archive_skipped"
)
