package call_test

import (
	"errors"
	"testing"

	"github.com/policypal-ai/voicegraph/call"
	"github.com/policypal-ai/voicegraph/intent"
	"github.com/policypal-ai/voicegraph/rag"
)

func TestSessionTurnSequence(t *testing.T) {
	s := call.NewSession(5)

	if err := s.AddTurn(call.Turn{Seq: 1, Transcript: "hello"}); err != nil {
		t.Fatalf("AddTurn(1) error = %v", err)
	}
	if err := s.AddTurn(call.Turn{Seq: 3}); !errors.Is(err, call.ErrTurnSequence) {
		t.Fatalf("AddTurn(3) error = %v, want ErrTurnSequence", err)
	}
	if err := s.AddTurn(call.Turn{Seq: 2}); err != nil {
		t.Fatalf("AddTurn(2) error = %v", err)
	}
	if got := s.TurnCount(); got != 2 {
		t.Errorf("TurnCount() = %d, want 2", got)
	}
}

func TestSessionRefusesTurnsAfterTermination(t *testing.T) {
	s := call.NewSession(5)
	if err := s.AddTurn(call.Turn{Seq: 1}); err != nil {
		t.Fatalf("AddTurn() error = %v", err)
	}
	s.Terminate()

	if err := s.AddTurn(call.Turn{Seq: 2}); !errors.Is(err, call.ErrSessionTerminated) {
		t.Fatalf("AddTurn after Terminate error = %v, want ErrSessionTerminated", err)
	}
	// Existing turns survive termination.
	if got := s.TurnCount(); got != 1 {
		t.Errorf("TurnCount() = %d, want 1", got)
	}
}

func TestSessionAbortPreservesState(t *testing.T) {
	s := call.NewSession(5)
	if err := s.AddTurn(call.Turn{Seq: 1, Intent: intent.Claims}); err != nil {
		t.Fatalf("AddTurn() error = %v", err)
	}
	s.AppendTranscript("User: my car was stolen")
	s.Abort()

	if !s.Terminated() {
		t.Error("Terminated() = false after Abort")
	}
	if !s.Incomplete() {
		t.Error("Incomplete() = false after Abort")
	}
	if got := s.TurnCount(); got != 1 {
		t.Errorf("TurnCount() = %d, want 1", got)
	}
	if got := len(s.Transcript()); got != 1 {
		t.Errorf("len(Transcript()) = %d, want 1", got)
	}
}

func TestSessionTurnsAreDefensiveCopies(t *testing.T) {
	s := call.NewSession(5)
	hits := []rag.Hit{{Text: "coverage details"}}
	if err := s.AddTurn(call.Turn{Seq: 1, Hits: hits}); err != nil {
		t.Fatalf("AddTurn() error = %v", err)
	}

	hits[0].Text = "mutated"
	turns := s.Turns()
	if turns[0].Hits[0].Text != "coverage details" {
		t.Error("stored turn shares the caller's hit slice")
	}

	turns[0].Hits[0].Text = "also mutated"
	if s.Turns()[0].Hits[0].Text != "coverage details" {
		t.Error("Turns() exposes internal hit storage")
	}
}

func TestSessionFinalIntent(t *testing.T) {
	s := call.NewSession(5)
	if got := s.FinalIntent(); got != intent.General {
		t.Errorf("FinalIntent() with no turns = %q, want %q", got, intent.General)
	}
	if err := s.AddTurn(call.Turn{Seq: 1, Intent: intent.CustomerService}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddTurn(call.Turn{Seq: 2, Intent: intent.EndCall}); err != nil {
		t.Fatal(err)
	}
	if got := s.FinalIntent(); got != intent.EndCall {
		t.Errorf("FinalIntent() = %q, want %q", got, intent.EndCall)
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	a, b := call.NewSession(5), call.NewSession(5)
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("session ids %q and %q, want distinct non-empty", a.ID(), b.ID())
	}
}
