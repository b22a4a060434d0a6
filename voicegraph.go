// Package voicegraph assembles the conversation runtime from configuration:
// the speech fallback chains, the retrieval-augmented responder, the audio
// collaborators, and the engine that drives them.
package voicegraph

import (
	"os"

	"github.com/policypal-ai/voicegraph/audio"
	"github.com/policypal-ai/voicegraph/call"
	"github.com/policypal-ai/voicegraph/config"
	"github.com/policypal-ai/voicegraph/dispatch"
	"github.com/policypal-ai/voicegraph/intent"
	"github.com/policypal-ai/voicegraph/knowledge"
	"github.com/policypal-ai/voicegraph/observability"
	"github.com/policypal-ai/voicegraph/rag"
	"github.com/policypal-ai/voicegraph/speech"
)

// Runtime is the assembled conversation stack shared by the CLI and server
// binaries.
type Runtime struct {
	Engine *call.Engine
	Store  *audio.Store
	Index  *knowledge.Index
}

// New builds a Runtime for cfg. apiKey authenticates generation; embedding
// and cloud speech read OPENAI_API_KEY from the environment. Extra engine
// options let each binary add its own collaborators (capture, playback).
func New(cfg config.Config, apiKey string, observer observability.Observer, extra ...call.EngineOption) (*Runtime, error) {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	index, err := knowledge.Open(cfg.Retrieval.IndexPath)
	if err != nil {
		return nil, err
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	embedder := rag.NewOpenAIEmbedder(openAIKey, "", cfg.Retrieval.EmbeddingModel)
	generator := rag.NewOpenAIGenerator(apiKey, cfg.Generation.BaseURL, rag.GeneratorOptions{
		Model:       cfg.Generation.Model,
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
		TopP:        cfg.Generation.TopP,
	})
	responder := rag.NewResponder(embedder, index, generator,
		rag.WithTopK(cfg.Retrieval.TopK),
		rag.WithObserver(observer),
	)

	// Fallback order is fixed configuration: local engine first for
	// transcription, cloud voice first for synthesis.
	transcribers := []speech.Transcriber{
		speech.NewLocalTranscriber(cfg.Speech.TranscriberURL, nil),
		speech.NewWhisperTranscriber(openAIKey, "", cfg.Speech.WhisperModel),
	}
	synthesizers := []speech.Synthesizer{
		speech.NewOpenAISynthesizer(openAIKey, "", cfg.Speech.SynthesisModel, cfg.Speech.Voice),
		speech.NewLocalSynthesizer(cfg.Speech.SynthesizerURL, cfg.Speech.Voice, nil),
	}

	transcription := speech.TranscriptionChain(transcribers,
		dispatch.WithTimeout[[]byte, speech.Transcription](cfg.Speech.AttemptTimeout()),
		dispatch.WithObserver[[]byte, speech.Transcription](observer),
	)
	synthesis := speech.SynthesisChain(synthesizers,
		dispatch.WithTimeout[string, []byte](cfg.Speech.AttemptTimeout()),
		dispatch.WithObserver[string, []byte](observer),
	)

	store, err := audio.NewStore(cfg.Audio.LogsDir)
	if err != nil {
		return nil, err
	}

	opts := []call.EngineOption{
		call.WithStore(store),
		call.WithArchiver(audio.NewArchiver(store, observer)),
		call.WithObserver(observer),
		call.WithMaxTurns(cfg.Conversation.MaxTurns),
		call.WithMaxSteps(cfg.Conversation.MaxSteps),
	}
	if cfg.Audio.PrerecordedDir != "" {
		opts = append(opts, call.WithCache(speech.NewCache(cfg.Audio.PrerecordedDir, nil)))
	}
	opts = append(opts, extra...)

	engine, err := call.NewEngine(transcription, synthesis, responder, intent.NewClassifier(nil), opts...)
	if err != nil {
		return nil, err
	}

	return &Runtime{Engine: engine, Store: store, Index: index}, nil
}
