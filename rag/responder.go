// Package rag turns a user utterance into a grounded natural-language reply:
// embed the query, search the knowledge index, and generate an answer from
// the retrieved context under a strict grounding policy.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/policypal-ai/voicegraph/observability"
)

// Fixed utterances for the two degraded paths. The empty-hit fallback is a
// policy outcome, not an error; the generation apology covers transport or
// malformed-response failures of the generation backend.
const (
	NoInformationReply = "I apologize, I couldn't find relevant information about that. Could you please rephrase your question?"
	GenerationApology  = "I apologize, I'm having trouble generating a response. Please try again."
)

// Hit is one retrieved knowledge snippet. Hits are ephemeral: produced and
// consumed within a single turn.
type Hit struct {
	Text   string
	Source map[string]string
}

// Embedder converts text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index performs nearest-neighbor search over embedded documents. The index
// defines result ordering; the responder does not re-rank.
type Index interface {
	Search(ctx context.Context, embedding []float32, k int) ([]Hit, error)
}

// Generator produces an answer from a system and user prompt.
type Generator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Responder wires the embedder, index, and generator behind the grounding
// policy. Construct once at startup; safe for concurrent sessions.
type Responder struct {
	embedder Embedder
	index    Index
	gen      Generator
	topK     int
	observer observability.Observer
}

// Option configures a Responder.
type Option func(*Responder)

// WithTopK sets how many hits Retrieve requests from the index.
func WithTopK(k int) Option {
	return func(r *Responder) { r.topK = k }
}

// WithObserver sets the responder's event observer.
func WithObserver(o observability.Observer) Option {
	return func(r *Responder) { r.observer = o }
}

const defaultTopK = 3

// NewResponder creates a Responder over the given collaborators.
func NewResponder(embedder Embedder, index Index, gen Generator, opts ...Option) *Responder {
	r := &Responder{
		embedder: embedder,
		index:    index,
		gen:      gen,
		topK:     defaultTopK,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve embeds the query and returns up to topK hits in index order.
// An empty query short-circuits to no hits without touching the embedder.
func (r *Responder) Retrieve(ctx context.Context, query string) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.index.Search(ctx, embedding, r.topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	r.observer.OnEvent(ctx, observability.Event{
		Type:      EventRetrieve,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "rag.Responder",
		Data: map[string]any{
			"query_length": len(query),
			"hits":         len(hits),
		},
	})

	return hits, nil
}

// Respond produces a reply for the query given the retrieved hits.
//
// With no hits the generator is never invoked: the grounding policy forbids
// generating from empty context, so the fixed fallback utterance is returned.
// A generator failure is absorbed into the fixed apology; nothing here is
// fatal to the conversation.
func (r *Responder) Respond(ctx context.Context, query string, hits []Hit) string {
	if len(hits) == 0 {
		r.observer.OnEvent(ctx, observability.Event{
			Type:      EventEmptyContext,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    "rag.Responder",
			Data:      map[string]any{"query_length": len(query)},
		})
		return NoInformationReply
	}

	contexts := make([]string, len(hits))
	for i, hit := range hits {
		contexts[i] = hit.Text
	}

	answer, err := r.gen.Complete(ctx, systemPrompt, userPrompt(strings.Join(contexts, "\n\n"), query))
	if err != nil {
		r.observer.OnEvent(ctx, observability.Event{
			Type:      EventGenerateFailed,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    "rag.Responder",
			Data:      map[string]any{"error": err.Error()},
		})
		return GenerationApology
	}

	return strings.TrimSpace(answer)
}

// Responder event types.
const (
	EventRetrieve       observability.EventType = "rag.retrieve"
	EventEmptyContext   observability.EventType = "rag.empty_context"
	EventGenerateFailed observability.EventType = "rag.generate.failed"
)
