// Package call implements the conversation core: the session and turn
// entities, and the state machine that drives one call from greeting to
// termination across the speech, retrieval, and generation collaborators.
package call

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/policypal-ai/voicegraph/intent"
	"github.com/policypal-ai/voicegraph/metrics"
	"github.com/policypal-ai/voicegraph/rag"
)

var (
	// ErrSessionTerminated reports a turn offered to a finished session.
	ErrSessionTerminated = errors.New("session terminated")
	// ErrTurnSequence reports a turn whose sequence number does not extend
	// the session contiguously.
	ErrTurnSequence = errors.New("turn out of sequence")
)

// PlaceholderTranscript stands in for the user's words when every
// transcription backend failed for a turn.
const PlaceholderTranscript = "[transcription failed]"

// Turn is one listen-respond cycle. Fields are filled progressively while
// the turn is live; once added to the session a Turn is never mutated.
type Turn struct {
	Seq           int
	Transcript    string
	Intent        intent.Intent
	Hits          []rag.Hit
	Reply         string
	UserAudioRef  string
	AgentAudioRef string
}

// Session is one complete conversation. It owns the ordered turns, the
// running transcript, and the metrics accumulator shared by the dispatch
// chains. Safe for concurrent use; a terminated session refuses mutation.
type Session struct {
	id        string
	createdAt time.Time
	maxTurns  int
	metrics   *metrics.Accumulator

	mu         sync.RWMutex
	turns      []Turn
	transcript []string
	terminated bool
	incomplete bool
}

// NewSession creates a session with a fresh UUIDv7 identifier.
func NewSession(maxTurns int) *Session {
	return &Session{
		id:        uuid.Must(uuid.NewV7()).String(),
		createdAt: time.Now(),
		maxTurns:  maxTurns,
		metrics:   metrics.NewAccumulator(),
	}
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session creation timestamp.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// MaxTurns returns the configured turn ceiling.
func (s *Session) MaxTurns() int { return s.maxTurns }

// Metrics returns the accumulator the dispatch chains record into.
func (s *Session) Metrics() *metrics.Accumulator { return s.metrics }

// AddTurn appends a completed turn. The turn's sequence number must be
// exactly one past the last recorded turn and the session must still be
// live; violations are orchestration defects, not degradable outcomes.
func (s *Session) AddTurn(t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return fmt.Errorf("add turn %d: %w", t.Seq, ErrSessionTerminated)
	}
	if want := len(s.turns) + 1; t.Seq != want {
		return fmt.Errorf("add turn %d, want %d: %w", t.Seq, want, ErrTurnSequence)
	}
	t.Hits = slices.Clone(t.Hits)
	s.turns = append(s.turns, t)
	return nil
}

// Turns returns a defensive copy of the recorded turns.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		copied[i] = t
		copied[i].Hits = slices.Clone(t.Hits)
	}
	return copied
}

// TurnCount returns the number of completed turns.
func (s *Session) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// FinalIntent returns the intent of the last completed turn, or General
// when no turn has completed.
func (s *Session) FinalIntent() intent.Intent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return intent.General
	}
	return s.turns[len(s.turns)-1].Intent
}

// AppendTranscript adds one speaker-labelled line to the conversation
// transcript. Transcript lines are accepted even after termination so the
// farewell can be recorded.
func (s *Session) AppendTranscript(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, line)
}

// Transcript returns a defensive copy of the transcript lines.
func (s *Session) Transcript() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.transcript)
}

// Terminate marks the session finished. Once set the flag is never cleared.
func (s *Session) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated = true
}

// Abort marks the session terminated-incomplete, preserving the turns and
// metrics recorded so far for audit.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated = true
	s.incomplete = true
}

// Terminated reports whether the session has finished.
func (s *Session) Terminated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terminated
}

// Incomplete reports whether the session was aborted mid-conversation.
func (s *Session) Incomplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.incomplete
}
