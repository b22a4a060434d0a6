package call

import (
	"context"
	"fmt"
	"strings"

	"github.com/policypal-ai/voicegraph/intent"
	"github.com/policypal-ai/voicegraph/observability"
)

// Greeting spoken text plus the audio produced for it. Audio is nil and
// Degraded true when synthesis was exhausted.
type Opening struct {
	Text     string
	Audio    []byte
	AudioRef string
	Degraded bool
}

// TurnOutcome is the result of processing one turn through the per-turn
// entry points used by the HTTP surface.
type TurnOutcome struct {
	Turn         Turn
	AgentAudio   []byte
	TTSDegraded  bool
	SourcesFound int
	Ended        bool
}

// Start creates a session and produces the greeting. The per-turn entry
// points and Run are alternative drivers of the same state machine; a
// session belongs to exactly one of them.
func (e *Engine) Start(ctx context.Context) (*Session, Opening, error) {
	s := NewSession(e.maxTurns)
	s.AppendTranscript("Agent: " + Greeting)

	e.emit(ctx, EventSessionStarted, observability.LevelInfo, map[string]any{
		"session_id": s.ID(),
		"max_turns":  e.maxTurns,
	})

	opening := Opening{Text: Greeting}
	wav, ok := e.synthesize(ctx, 0, Greeting, discardSink{})
	if !ok {
		opening.Degraded = true
		return s, opening, nil
	}
	opening.Audio = wav
	opening.AudioRef = e.keepSegment(ctx, s, 0, "agent", wav)
	return s, opening, nil
}

// ProcessAudio runs one turn from caller audio: transcription, intent,
// retrieval, reply, synthesis. Exhausted transcription degrades to the
// placeholder transcript and the turn still completes.
func (e *Engine) ProcessAudio(ctx context.Context, s *Session, wav []byte) (TurnOutcome, error) {
	if s.Terminated() {
		return TurnOutcome{}, fmt.Errorf("process audio: %w", ErrSessionTerminated)
	}

	seq := s.TurnCount() + 1
	userRef := e.keepSegment(ctx, s, seq, "user", wav)

	utterance, heard := "", PlaceholderTranscript
	result, err := e.transcription.Dispatch(ctx, wav, seq, s.Metrics())
	if err != nil {
		if ctx.Err() != nil {
			return TurnOutcome{}, ctx.Err()
		}
		s.Metrics().RecordError(fmt.Sprintf("turn %d: %v", seq, err))
	} else {
		utterance = result.Value.Text
		heard = result.Value.Text
	}
	s.AppendTranscript("User: " + heard)

	return e.completeTurn(ctx, s, seq, utterance, heard, userRef)
}

// ProcessText runs one turn from typed text, skipping transcription.
func (e *Engine) ProcessText(ctx context.Context, s *Session, text string) (TurnOutcome, error) {
	if s.Terminated() {
		return TurnOutcome{}, fmt.Errorf("process text: %w", ErrSessionTerminated)
	}

	text = strings.TrimSpace(text)
	seq := s.TurnCount() + 1
	s.AppendTranscript("User: " + text)

	return e.completeTurn(ctx, s, seq, text, text, "")
}

func (e *Engine) completeTurn(ctx context.Context, s *Session, seq int, utterance, heard, userRef string) (TurnOutcome, error) {
	label := e.classifier.Classify(utterance)

	hits, err := e.responder.Retrieve(ctx, utterance)
	if err != nil {
		if ctx.Err() != nil {
			return TurnOutcome{}, ctx.Err()
		}
		e.emit(ctx, EventRetrievalFailed, observability.LevelWarning, map[string]any{
			"session_id": s.ID(),
			"turn":       seq,
			"error":      err.Error(),
		})
		hits = nil
	}

	reply := e.responder.Respond(ctx, utterance, hits)
	s.AppendTranscript("Agent: " + reply)

	outcome := TurnOutcome{SourcesFound: len(hits)}
	wav, ok := e.synthesize(ctx, seq, reply, s.Metrics())
	if ok {
		outcome.AgentAudio = wav
	} else {
		outcome.TTSDegraded = true
		e.emit(ctx, EventSynthesisDegraded, observability.LevelWarning, map[string]any{
			"session_id": s.ID(),
			"turn":       seq,
		})
	}

	turn := Turn{
		Seq:          seq,
		Transcript:   heard,
		Intent:       label,
		Hits:         hits,
		Reply:        reply,
		UserAudioRef: userRef,
	}
	if ok {
		turn.AgentAudioRef = e.keepSegment(ctx, s, seq, "agent", wav)
	}
	if err := s.AddTurn(turn); err != nil {
		return TurnOutcome{}, err
	}
	outcome.Turn = turn

	if label == intent.EndCall || seq >= s.MaxTurns() {
		s.Terminate()
		e.finalize(ctx, s)
		outcome.Ended = true
	}
	return outcome, nil
}
