package call_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/policypal-ai/voicegraph/call"
	"github.com/policypal-ai/voicegraph/dispatch"
	"github.com/policypal-ai/voicegraph/intent"
	"github.com/policypal-ai/voicegraph/rag"
	"github.com/policypal-ai/voicegraph/speech"
)

// scriptCapture replays scripted utterances as audio bytes, one per turn.
type scriptCapture struct {
	utterances []string
	next       int
}

func (c *scriptCapture) Capture(context.Context) ([]byte, error) {
	if c.next >= len(c.utterances) {
		return nil, io.EOF
	}
	wav := []byte(c.utterances[c.next])
	c.next++
	return wav, nil
}

// echoTranscriber transcribes audio bytes back into their string form.
type echoTranscriber struct {
	name string
	fail bool
}

func (t echoTranscriber) Name() string { return t.name }

func (t echoTranscriber) Transcribe(_ context.Context, wav []byte) (speech.Transcription, error) {
	if t.fail {
		return speech.Transcription{}, errors.New("engine unavailable")
	}
	return speech.Transcription{Text: string(wav), SegmentCount: 1}, nil
}

type stubSynthesizer struct {
	name string
	fail bool
}

func (s stubSynthesizer) Name() string { return s.name }

func (s stubSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	if s.fail {
		return nil, errors.New("engine unavailable")
	}
	return []byte("wav:" + text), nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

// fixedIndex returns the configured hits for every search.
type fixedIndex struct {
	hits []rag.Hit
}

func (i fixedIndex) Search(context.Context, []float32, int) ([]rag.Hit, error) {
	return i.hits, nil
}

type fixedGenerator struct {
	reply string
}

func (g fixedGenerator) Complete(context.Context, string, string) (string, error) {
	return g.reply, nil
}

func newTestEngine(t *testing.T, sttFails bool, capture call.Capture, maxTurns int) *call.Engine {
	t.Helper()

	transcribers := []speech.Transcriber{
		echoTranscriber{name: "primary", fail: sttFails},
		echoTranscriber{name: "secondary", fail: sttFails},
	}
	synthesizers := []speech.Synthesizer{
		stubSynthesizer{name: "primary"},
		stubSynthesizer{name: "secondary"},
	}
	responder := rag.NewResponder(
		fixedEmbedder{},
		fixedIndex{hits: []rag.Hit{{Text: "Premiums are due on the 5th of every month."}}},
		fixedGenerator{reply: "Your premium is due on the 5th of every month."},
	)

	engine, err := call.NewEngine(
		speech.TranscriptionChain(transcribers),
		speech.SynthesisChain(synthesizers),
		responder,
		intent.NewClassifier(nil),
		call.WithCapture(capture),
		call.WithMaxTurns(maxTurns),
	)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func TestRunTwoTurnConversation(t *testing.T) {
	capture := &scriptCapture{utterances: []string{
		"I want to check my policy premium",
		"thank you bye",
	}}
	engine := newTestEngine(t, false, capture, 2)

	session, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !session.Terminated() {
		t.Error("session not terminated after Run")
	}
	if session.Incomplete() {
		t.Error("completed session marked incomplete")
	}

	turns := session.Turns()
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	for i, turn := range turns {
		if turn.Seq != i+1 {
			t.Errorf("turn[%d].Seq = %d, want %d", i, turn.Seq, i+1)
		}
	}
	if turns[0].Intent != intent.CustomerService {
		t.Errorf("turn 1 intent = %q, want %q", turns[0].Intent, intent.CustomerService)
	}
	if len(turns[0].Hits) != 1 {
		t.Errorf("turn 1 hits = %d, want 1", len(turns[0].Hits))
	}
	if turns[0].Reply != "Your premium is due on the 5th of every month." {
		t.Errorf("turn 1 reply = %q", turns[0].Reply)
	}
	if turns[1].Intent != intent.EndCall {
		t.Errorf("turn 2 intent = %q, want %q", turns[1].Intent, intent.EndCall)
	}

	snap := session.Metrics().Snapshot()
	if got := snap.CallCount(dispatch.KindTranscription); got != 2 {
		t.Errorf("transcription records = %d, want 2", got)
	}
	if got := snap.CallCount(dispatch.KindSynthesis); got != 2 {
		t.Errorf("synthesis records = %d, want 2", got)
	}
	if snap.FallbackCount != 0 {
		t.Errorf("fallback count = %d, want 0", snap.FallbackCount)
	}
}

func TestRunContinuesWhenTranscriptionExhausted(t *testing.T) {
	capture := &scriptCapture{utterances: []string{"anything", "anything"}}
	engine := newTestEngine(t, true, capture, 2)

	session, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	turns := session.Turns()
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2: exhausted transcription must not abort the loop", len(turns))
	}
	if turns[0].Transcript != call.PlaceholderTranscript {
		t.Errorf("turn 1 transcript = %q, want %q", turns[0].Transcript, call.PlaceholderTranscript)
	}
	// Classification runs on the empty utterance.
	if turns[0].Intent != intent.General {
		t.Errorf("turn 1 intent = %q, want %q", turns[0].Intent, intent.General)
	}
	// No utterance means no retrieval, so the fixed fallback reply applies.
	if turns[0].Reply != rag.NoInformationReply {
		t.Errorf("turn 1 reply = %q, want fallback utterance", turns[0].Reply)
	}

	snap := session.Metrics().Snapshot()
	// Both backends fail on both turns: four failed transcription records.
	if got := snap.CallCount(dispatch.KindTranscription); got != 4 {
		t.Errorf("transcription records = %d, want 4", got)
	}
	for _, rec := range snap.Records {
		if rec.Kind == dispatch.KindTranscription && rec.Status != dispatch.StatusFailed {
			t.Errorf("transcription record status = %q, want failed", rec.Status)
		}
	}
	if len(snap.Errors) != 2 {
		t.Errorf("error descriptors = %d, want 2", len(snap.Errors))
	}
}

func TestRunEndsAtMaxTurnsRegardlessOfIntent(t *testing.T) {
	capture := &scriptCapture{utterances: []string{
		"what does my policy cover",
		"how do I renew it",
		"never reached",
	}}
	engine := newTestEngine(t, false, capture, 2)

	session, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := session.TurnCount(); got != 2 {
		t.Errorf("TurnCount() = %d, want 2", got)
	}
	if capture.next != 2 {
		t.Errorf("capture calls = %d, want 2", capture.next)
	}
}

func TestRunGreetingAndFarewellInTranscriptOnly(t *testing.T) {
	capture := &scriptCapture{utterances: []string{"goodbye"}}
	engine := newTestEngine(t, false, capture, 5)

	session, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	transcript := session.Transcript()
	if len(transcript) == 0 || transcript[0] != "Agent: "+call.Greeting {
		t.Errorf("transcript[0] = %q, want greeting line", transcript[0])
	}
	if last := transcript[len(transcript)-1]; last != "Agent: "+call.Farewell {
		t.Errorf("last transcript line = %q, want farewell line", last)
	}

	// Fixed utterances belong to no turn, so only turn synthesis is metered.
	snap := session.Metrics().Snapshot()
	if got := snap.CallCount(dispatch.KindSynthesis); got != 1 {
		t.Errorf("synthesis records = %d, want 1", got)
	}
}

// cancelCapture cancels the context on its second call, simulating a caller
// disconnect mid-conversation.
type cancelCapture struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancelCapture) Capture(ctx context.Context) ([]byte, error) {
	c.calls++
	if c.calls >= 2 {
		c.cancel()
		return nil, ctx.Err()
	}
	return []byte("what is my deductible"), nil
}

func TestRunAbortMarksSessionIncomplete(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	capture := &cancelCapture{cancel: cancel}
	engine := newTestEngine(t, false, capture, 5)

	session, err := engine.Run(ctx)
	if err == nil {
		t.Fatal("Run() error = nil, want cancellation error")
	}
	if session == nil {
		t.Fatal("Run() session = nil, want aborted session with completed turns")
	}
	if !session.Terminated() || !session.Incomplete() {
		t.Errorf("Terminated()=%v Incomplete()=%v, want both true",
			session.Terminated(), session.Incomplete())
	}
	// Turn 1 completed before the disconnect and must survive the abort.
	if got := session.TurnCount(); got != 1 {
		t.Errorf("TurnCount() = %d, want 1", got)
	}
}

func TestStartAndProcessText(t *testing.T) {
	engine := newTestEngine(t, false, nil, 5)

	session, opening, err := engine.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if opening.Text != call.Greeting {
		t.Errorf("opening text = %q", opening.Text)
	}
	if len(opening.Audio) == 0 {
		t.Error("opening audio empty, want synthesized greeting")
	}

	outcome, err := engine.ProcessText(context.Background(), session, "I want to check my policy premium")
	if err != nil {
		t.Fatalf("ProcessText() error = %v", err)
	}
	if outcome.Turn.Intent != intent.CustomerService {
		t.Errorf("intent = %q, want %q", outcome.Turn.Intent, intent.CustomerService)
	}
	if outcome.SourcesFound != 1 {
		t.Errorf("SourcesFound = %d, want 1", outcome.SourcesFound)
	}
	if outcome.Ended {
		t.Error("Ended = true before end intent")
	}

	outcome, err = engine.ProcessText(context.Background(), session, "that's all, goodbye")
	if err != nil {
		t.Fatalf("ProcessText() error = %v", err)
	}
	if !outcome.Ended {
		t.Error("Ended = false on end_call intent")
	}
	if !session.Terminated() {
		t.Error("session not terminated after end intent")
	}

	if _, err := engine.ProcessText(context.Background(), session, "hello?"); !errors.Is(err, call.ErrSessionTerminated) {
		t.Errorf("ProcessText after end error = %v, want ErrSessionTerminated", err)
	}
}

func TestProcessAudioDegradesOnExhaustedTranscription(t *testing.T) {
	engine := newTestEngine(t, true, nil, 5)

	session, _, err := engine.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	outcome, err := engine.ProcessAudio(context.Background(), session, []byte("unintelligible"))
	if err != nil {
		t.Fatalf("ProcessAudio() error = %v", err)
	}
	if outcome.Turn.Transcript != call.PlaceholderTranscript {
		t.Errorf("transcript = %q, want placeholder", outcome.Turn.Transcript)
	}
	if outcome.Turn.Intent != intent.General {
		t.Errorf("intent = %q, want %q", outcome.Turn.Intent, intent.General)
	}
	if outcome.Ended {
		t.Error("Ended = true, degraded transcription must not end the call")
	}
	if !strings.Contains(session.Transcript()[1], call.PlaceholderTranscript) {
		t.Errorf("transcript line = %q, want placeholder entry", session.Transcript()[1])
	}
}
