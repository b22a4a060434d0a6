package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/policypal-ai/voicegraph/rag"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeIndex struct {
	hits  []rag.Hit
	gotK  int
	calls int
}

func (i *fakeIndex) Search(ctx context.Context, embedding []float32, k int) ([]rag.Hit, error) {
	i.calls++
	i.gotK = k
	return i.hits, nil
}

type fakeGenerator struct {
	reply string
	err   error
	calls int

	lastSystem string
	lastUser   string
}

func (g *fakeGenerator) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	g.calls++
	g.lastSystem = systemPrompt
	g.lastUser = userPrompt
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func TestRespond_EmptyHitsSkipsGenerator(t *testing.T) {
	gen := &fakeGenerator{reply: "should not appear"}
	r := rag.NewResponder(&fakeEmbedder{}, &fakeIndex{}, gen)

	got := r.Respond(context.Background(), "what is my premium", nil)

	if got != rag.NoInformationReply {
		t.Errorf("Respond = %q, want fixed fallback utterance", got)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times, want 0 (empty-context grounding policy)", gen.calls)
	}
}

func TestRespond_WithHits(t *testing.T) {
	gen := &fakeGenerator{reply: "  Your premium is due monthly.  "}
	r := rag.NewResponder(&fakeEmbedder{}, &fakeIndex{}, gen)

	hits := []rag.Hit{
		{Text: "Premiums are billed monthly."},
		{Text: "Late payments incur a fee."},
	}
	got := r.Respond(context.Background(), "when is my premium due", hits)

	if got != "Your premium is due monthly." {
		t.Errorf("Respond = %q, want trimmed generator reply", got)
	}
	if gen.calls != 1 {
		t.Fatalf("generator called %d times, want 1", gen.calls)
	}
	for _, want := range []string{"Premiums are billed monthly.", "Late payments incur a fee.", "when is my premium due"} {
		if !strings.Contains(gen.lastUser, want) {
			t.Errorf("user prompt missing %q:\n%s", want, gen.lastUser)
		}
	}
	if gen.lastSystem == "" {
		t.Error("system prompt is empty")
	}
}

func TestRespond_GeneratorFailureIsApology(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream 502")}
	r := rag.NewResponder(&fakeEmbedder{}, &fakeIndex{}, gen)

	got := r.Respond(context.Background(), "q", []rag.Hit{{Text: "context"}})

	if got != rag.GenerationApology {
		t.Errorf("Respond = %q, want fixed apology", got)
	}
}

func TestRetrieve_EmptyQueryShortCircuits(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := &fakeIndex{hits: []rag.Hit{{Text: "never"}}}
	r := rag.NewResponder(emb, idx, &fakeGenerator{})

	hits, err := r.Retrieve(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits, want 0", len(hits))
	}
	if emb.calls != 0 || idx.calls != 0 {
		t.Errorf("embedder/index touched (%d/%d calls) for empty query", emb.calls, idx.calls)
	}
}

func TestRetrieve_TopK(t *testing.T) {
	idx := &fakeIndex{hits: []rag.Hit{{Text: "a"}, {Text: "b"}}}
	r := rag.NewResponder(&fakeEmbedder{}, idx, &fakeGenerator{}, rag.WithTopK(5))

	hits, err := r.Retrieve(context.Background(), "coverage question")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if idx.gotK != 5 {
		t.Errorf("index asked for k=%d, want 5", idx.gotK)
	}
	// Index ordering is preserved, not re-ranked.
	if hits[0].Text != "a" || hits[1].Text != "b" {
		t.Errorf("hit order changed: %v", hits)
	}
}

func TestRetrieve_EmbedderError(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("model offline")}
	r := rag.NewResponder(emb, &fakeIndex{}, &fakeGenerator{})

	if _, err := r.Retrieve(context.Background(), "query"); err == nil {
		t.Error("Retrieve = nil error, want embed failure")
	}
}
