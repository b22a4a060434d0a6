package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/policypal-ai/voicegraph/audio"
	"github.com/policypal-ai/voicegraph/dispatch"
	"github.com/policypal-ai/voicegraph/graph"
	"github.com/policypal-ai/voicegraph/intent"
	"github.com/policypal-ai/voicegraph/observability"
	"github.com/policypal-ai/voicegraph/rag"
	"github.com/policypal-ai/voicegraph/speech"
)

// Fixed utterances spoken by the agent outside generated replies.
const (
	Greeting = "Hi, this is PolicyPal AI from ICICI Lombard Insurance. How can I help you today?"
	Farewell = "Thank you for calling ICICI Lombard Insurance. Have a great day!"
)

const defaultMaxTurns = 5

// Capture obtains one utterance of caller audio as WAV bytes. The
// implementation decides how capture ends (silence detection, device EOF).
type Capture interface {
	Capture(ctx context.Context) ([]byte, error)
}

// State is the value threaded through the conversation graph. Per-turn
// fields are reset by the listen node; Session persists across the call.
type State struct {
	Session *Session
	Turn    int

	// Per-turn fields.
	Utterance     string
	Heard         string
	Intent        intent.Intent
	Hits          []rag.Hit
	Reply         string
	UserAudioRef  string
	AgentAudioRef string

	ShouldEnd bool
}

// Engine drives one conversation through the state machine. Construct once;
// Run and the per-turn methods may serve independent sessions concurrently.
type Engine struct {
	transcription *dispatch.Chain[[]byte, speech.Transcription]
	synthesis     *dispatch.Chain[string, []byte]
	responder     *rag.Responder
	classifier    *intent.Classifier

	capture  Capture
	player   audio.Player
	store    *audio.Store
	archiver *audio.Archiver
	cache    *speech.Cache

	observer observability.Observer
	maxTurns int
	maxSteps int

	workflow *graph.Graph[State]
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCapture sets the audio capture collaborator used by Run.
func WithCapture(c Capture) EngineOption {
	return func(e *Engine) { e.capture = c }
}

// WithPlayer sets the playback collaborator.
func WithPlayer(p audio.Player) EngineOption {
	return func(e *Engine) { e.player = p }
}

// WithStore sets the segment store for per-turn audio artifacts.
func WithStore(s *audio.Store) EngineOption {
	return func(e *Engine) { e.store = s }
}

// WithArchiver sets the end-of-call archiver.
func WithArchiver(a *audio.Archiver) EngineOption {
	return func(e *Engine) { e.archiver = a }
}

// WithCache sets the pre-recorded phrase cache consulted before synthesis.
func WithCache(c *speech.Cache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithObserver sets the engine's event observer.
func WithObserver(o observability.Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// WithMaxTurns sets the hard turn ceiling for sessions the engine creates.
func WithMaxTurns(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxTurns = n
		}
	}
}

// WithMaxSteps bounds graph execution length.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewEngine creates an Engine over the given chains, responder, and
// classifier, then wires the conversation workflow.
func NewEngine(
	transcription *dispatch.Chain[[]byte, speech.Transcription],
	synthesis *dispatch.Chain[string, []byte],
	responder *rag.Responder,
	classifier *intent.Classifier,
	opts ...EngineOption,
) (*Engine, error) {
	e := &Engine{
		transcription: transcription,
		synthesis:     synthesis,
		responder:     responder,
		classifier:    classifier,
		player:        audio.NoOpPlayer{},
		observer:      observability.NoOpObserver{},
		maxTurns:      defaultMaxTurns,
	}
	for _, opt := range opts {
		opt(e)
	}

	workflow, err := e.buildWorkflow()
	if err != nil {
		return nil, fmt.Errorf("build conversation workflow: %w", err)
	}
	e.workflow = workflow
	return e, nil
}

func (e *Engine) buildWorkflow() (*graph.Graph[State], error) {
	g := graph.New[State](graph.Config{Name: "conversation", MaxSteps: e.maxSteps}, e.observer)

	nodes := map[string]graph.NodeFunc[State]{
		"initialize_session":   e.initializeSession,
		"greet_user":           e.greetUser,
		"listen_to_user":       e.listenToUser,
		"detect_intent":        e.detectIntent,
		"retrieve_information": e.retrieveInformation,
		"generate_response":    e.generateResponse,
		"check_continue":       e.checkContinue,
		"end_call":             e.endCall,
	}
	for name, fn := range nodes {
		if err := g.AddNode(name, fn); err != nil {
			return nil, err
		}
	}

	edges := []struct {
		from, to, name string
		pred           graph.Predicate[State]
	}{
		{"initialize_session", "greet_user", "", nil},
		{"greet_user", "listen_to_user", "", nil},
		{"listen_to_user", "detect_intent", "", nil},
		{"detect_intent", "retrieve_information", "", nil},
		{"retrieve_information", "generate_response", "", nil},
		{"generate_response", "check_continue", "", nil},
		{"check_continue", "end_call", "end", func(s State) bool { return s.ShouldEnd }},
		{"check_continue", "listen_to_user", "continue", func(s State) bool { return !s.ShouldEnd }},
	}
	for _, edge := range edges {
		if err := g.AddEdge(edge.from, edge.to, edge.name, edge.pred); err != nil {
			return nil, err
		}
	}

	if err := g.SetEntryPoint("initialize_session"); err != nil {
		return nil, err
	}
	if err := g.SetExitPoint("end_call"); err != nil {
		return nil, err
	}
	return g, g.Validate()
}

// Run executes one full conversation from greeting to farewell. On a fatal
// orchestration error or cancellation the session is marked aborted with its
// completed turns and metrics intact, and returned alongside the error.
func (e *Engine) Run(ctx context.Context) (*Session, error) {
	final, err := e.workflow.Execute(ctx, State{})
	if err != nil {
		var execErr *graph.ExecutionError[State]
		if errors.As(err, &execErr) && execErr.State.Session != nil {
			execErr.State.Session.Abort()
			return execErr.State.Session, err
		}
		return nil, err
	}
	return final.Session, nil
}

// ---- nodes ----

func (e *Engine) initializeSession(ctx context.Context, state State) (State, error) {
	state.Session = NewSession(e.maxTurns)
	state.Turn = 0
	state.ShouldEnd = false

	e.emit(ctx, EventSessionStarted, observability.LevelInfo, map[string]any{
		"session_id": state.Session.ID(),
		"max_turns":  e.maxTurns,
	})
	return state, nil
}

func (e *Engine) greetUser(ctx context.Context, state State) (State, error) {
	state.Session.AppendTranscript("Agent: " + Greeting)

	// The greeting belongs to no turn, so its synthesis never lands in the
	// session metrics.
	if wav, ok := e.synthesize(ctx, 0, Greeting, discardSink{}); ok {
		state.AgentAudioRef = e.keepSegment(ctx, state.Session, 0, "agent", wav)
		e.play(ctx, state.Session, wav)
	}
	return state, nil
}

func (e *Engine) listenToUser(ctx context.Context, state State) (State, error) {
	state.Turn++
	state.Utterance = ""
	state.Heard = ""
	state.Intent = ""
	state.Hits = nil
	state.Reply = ""
	state.UserAudioRef = ""
	state.AgentAudioRef = ""

	if e.capture == nil {
		return state, errors.New("no capture collaborator configured")
	}

	wav, err := e.capture.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return state, ctx.Err()
		}
		e.emit(ctx, EventTranscriptionDegraded, observability.LevelWarning, map[string]any{
			"session_id": state.Session.ID(),
			"turn":       state.Turn,
			"error":      err.Error(),
		})
		state.Heard = PlaceholderTranscript
		state.Session.AppendTranscript("User: " + PlaceholderTranscript)
		return state, nil
	}
	state.UserAudioRef = e.keepSegment(ctx, state.Session, state.Turn, "user", wav)

	result, err := e.transcription.Dispatch(ctx, wav, state.Turn, state.Session.Metrics())
	if err != nil {
		if ctx.Err() != nil {
			return state, ctx.Err()
		}
		state.Session.Metrics().RecordError(fmt.Sprintf("turn %d: %v", state.Turn, err))
		state.Heard = PlaceholderTranscript
		state.Session.AppendTranscript("User: " + PlaceholderTranscript)
		return state, nil
	}

	state.Utterance = result.Value.Text
	state.Heard = result.Value.Text
	state.Session.AppendTranscript("User: " + result.Value.Text)
	return state, nil
}

func (e *Engine) detectIntent(_ context.Context, state State) (State, error) {
	state.Intent = e.classifier.Classify(state.Utterance)
	if state.Intent == intent.EndCall {
		state.ShouldEnd = true
	}
	return state, nil
}

func (e *Engine) retrieveInformation(ctx context.Context, state State) (State, error) {
	hits, err := e.responder.Retrieve(ctx, state.Utterance)
	if err != nil {
		if ctx.Err() != nil {
			return state, ctx.Err()
		}
		// Retrieval failure degrades to the no-context reply path.
		e.emit(ctx, EventRetrievalFailed, observability.LevelWarning, map[string]any{
			"session_id": state.Session.ID(),
			"turn":       state.Turn,
			"error":      err.Error(),
		})
		state.Hits = nil
		return state, nil
	}
	state.Hits = hits
	return state, nil
}

func (e *Engine) generateResponse(ctx context.Context, state State) (State, error) {
	state.Reply = e.responder.Respond(ctx, state.Utterance, state.Hits)
	state.Session.AppendTranscript("Agent: " + state.Reply)

	if wav, ok := e.synthesize(ctx, state.Turn, state.Reply, state.Session.Metrics()); ok {
		state.AgentAudioRef = e.keepSegment(ctx, state.Session, state.Turn, "agent", wav)
		e.play(ctx, state.Session, wav)
	} else {
		e.emit(ctx, EventSynthesisDegraded, observability.LevelWarning, map[string]any{
			"session_id": state.Session.ID(),
			"turn":       state.Turn,
		})
	}

	err := state.Session.AddTurn(Turn{
		Seq:           state.Turn,
		Transcript:    state.Heard,
		Intent:        state.Intent,
		Hits:          state.Hits,
		Reply:         state.Reply,
		UserAudioRef:  state.UserAudioRef,
		AgentAudioRef: state.AgentAudioRef,
	})
	if err != nil {
		return state, err
	}
	return state, nil
}

func (e *Engine) checkContinue(_ context.Context, state State) (State, error) {
	if state.Turn >= e.maxTurns {
		state.ShouldEnd = true
	}
	return state, nil
}

func (e *Engine) endCall(ctx context.Context, state State) (State, error) {
	state.Session.AppendTranscript("Agent: " + Farewell)
	if wav, ok := e.synthesize(ctx, 0, Farewell, discardSink{}); ok {
		e.play(ctx, state.Session, wav)
	}

	state.Session.Terminate()
	e.finalize(ctx, state.Session)
	return state, nil
}

// finalize archives audio and persists the transcript. Best effort: a call
// never fails because its records did.
func (e *Engine) finalize(ctx context.Context, s *Session) {
	if e.archiver != nil {
		if err := e.archiver.Archive(ctx, s.ID()); err != nil {
			e.emit(ctx, EventArchiveSkipped, observability.LevelWarning, map[string]any{
				"session_id": s.ID(),
				"error":      err.Error(),
			})
		}
		lines := []string{
			"Session ID: " + s.ID(),
			"Intent: " + string(s.FinalIntent()),
			fmt.Sprintf("Turns: %d", s.TurnCount()),
			"",
		}
		lines = append(lines, s.Transcript()...)
		if err := e.archiver.WriteTranscript(s.ID(), lines); err != nil {
			e.emit(ctx, EventArchiveSkipped, observability.LevelWarning, map[string]any{
				"session_id": s.ID(),
				"error":      err.Error(),
			})
		}
	}

	snap := s.Metrics().Snapshot()
	e.emit(ctx, EventSessionEnded, observability.LevelInfo, map[string]any{
		"session_id":     s.ID(),
		"turns":          s.TurnCount(),
		"intent":         string(s.FinalIntent()),
		"incomplete":     s.Incomplete(),
		"fallback_count": snap.FallbackCount,
		"stt_latency_ms": snap.TranscriptionLatency.Milliseconds(),
		"tts_latency_ms": snap.SynthesisLatency.Milliseconds(),
	})
}

// synthesize produces audio for text, consulting the pre-recorded cache
// first. A cache hit skips the chain entirely and records nothing. Returns
// false when synthesis is exhausted and the reply degrades to text only.
func (e *Engine) synthesize(ctx context.Context, turn int, text string, sink dispatch.Sink) ([]byte, bool) {
	if e.cache != nil {
		if wav, ok := e.cache.Lookup(text); ok {
			return wav, true
		}
	}

	result, err := e.synthesis.Dispatch(ctx, text, turn, sink)
	if err != nil {
		return nil, false
	}
	return result.Value, true
}

func (e *Engine) keepSegment(ctx context.Context, s *Session, seq int, role string, wav []byte) string {
	if e.store == nil {
		return ""
	}
	ref, err := e.store.SaveSegment(s.ID(), seq, role, wav)
	if err != nil {
		e.emit(ctx, EventSegmentDropped, observability.LevelWarning, map[string]any{
			"session_id": s.ID(),
			"turn":       seq,
			"role":       role,
			"error":      err.Error(),
		})
		return ""
	}
	return ref
}

func (e *Engine) play(ctx context.Context, s *Session, wav []byte) {
	if err := e.player.Play(ctx, wav); err != nil {
		e.emit(ctx, EventPlaybackFailed, observability.LevelWarning, map[string]any{
			"session_id": s.ID(),
			"error":      err.Error(),
		})
	}
}

func (e *Engine) emit(ctx context.Context, eventType observability.EventType, level observability.Level, data map[string]any) {
	e.observer.OnEvent(ctx, observability.Event{
		Type:      eventType,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "call.engine",
		Data:      data,
	})
}

// discardSink drops records for utterances outside the turn model, keeping
// the invariant that every recorded call belongs to exactly one turn.
type discardSink struct{}

func (discardSink) Record(dispatch.CallRecord) {}
