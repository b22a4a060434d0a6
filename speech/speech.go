// Package speech defines the transcription and synthesis backends consumed
// by the fallback dispatch chains, plus the optional pre-recorded phrase
// cache consulted before synthesis.
package speech

import (
	"context"

	"github.com/policypal-ai/voicegraph/dispatch"
)

// Transcription is the result of one speech-to-text call.
type Transcription struct {
	Text         string
	SegmentCount int
}

// Transcriber converts captured audio into text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte) (Transcription, error)
}

// Synthesizer converts reply text into audio bytes.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type transcriberBackend struct {
	t Transcriber
}

func (b transcriberBackend) Name() string { return b.t.Name() }

func (b transcriberBackend) Call(ctx context.Context, audio []byte) (Transcription, error) {
	return b.t.Transcribe(ctx, audio)
}

type synthesizerBackend struct {
	s Synthesizer
}

func (b synthesizerBackend) Name() string { return b.s.Name() }

func (b synthesizerBackend) Call(ctx context.Context, text string) ([]byte, error) {
	return b.s.Synthesize(ctx, text)
}

// TranscriptionChain builds the fallback chain over transcribers in order,
// with the transcription-specific accounting annotator installed.
func TranscriptionChain(backends []Transcriber, opts ...dispatch.Option[[]byte, Transcription]) *dispatch.Chain[[]byte, Transcription] {
	wrapped := make([]dispatch.Backend[[]byte, Transcription], len(backends))
	for i, b := range backends {
		wrapped[i] = transcriberBackend{t: b}
	}

	opts = append(opts, dispatch.WithAnnotator[[]byte, Transcription](
		func(rec *dispatch.CallRecord, _ []byte, resp Transcription) {
			rec.SegmentCount = resp.SegmentCount
			rec.TextLength = len(resp.Text)
		}))

	return dispatch.NewChain(dispatch.KindTranscription, wrapped, opts...)
}

// SynthesisChain builds the fallback chain over synthesizers in order, with
// the synthesis-specific accounting annotator installed.
func SynthesisChain(backends []Synthesizer, opts ...dispatch.Option[string, []byte]) *dispatch.Chain[string, []byte] {
	wrapped := make([]dispatch.Backend[string, []byte], len(backends))
	for i, b := range backends {
		wrapped[i] = synthesizerBackend{s: b}
	}

	opts = append(opts, dispatch.WithAnnotator[string, []byte](
		func(rec *dispatch.CallRecord, req string, resp []byte) {
			rec.TextLength = len(req)
			rec.OutputBytes = len(resp)
		}))

	return dispatch.NewChain(dispatch.KindSynthesis, wrapped, opts...)
}
