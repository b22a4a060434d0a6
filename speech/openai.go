package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// WhisperTranscriber transcribes audio through an OpenAI-compatible Whisper
// endpoint.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

// NewWhisperTranscriber creates a Whisper-backed transcriber. model may be
// empty for whisper-1; baseURL may be empty for the default API.
func NewWhisperTranscriber(apiKey, baseURL, model string) *WhisperTranscriber {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (t *WhisperTranscriber) Name() string { return "whisper" }

func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte) (Transcription, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		Reader:   bytes.NewReader(audio),
		FilePath: "turn.wav", // name only; content comes from Reader
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return Transcription{}, fmt.Errorf("whisper transcription: %w", err)
	}

	segments := len(resp.Segments)
	if segments == 0 && resp.Text != "" {
		segments = 1
	}

	return Transcription{
		Text:         resp.Text,
		SegmentCount: segments,
	}, nil
}

// OpenAISynthesizer generates speech through an OpenAI-compatible TTS
// endpoint.
type OpenAISynthesizer struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
}

// NewOpenAISynthesizer creates a TTS-backed synthesizer. model and voice may
// be empty for tts-1 / alloy.
func NewOpenAISynthesizer(apiKey, baseURL, model, voice string) *OpenAISynthesizer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.TTSModel1)
	}
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAISynthesizer{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.SpeechModel(model),
		voice:  openai.SpeechVoice(voice),
	}
}

func (s *OpenAISynthesizer) Name() string { return "openai_tts" }

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, fmt.Errorf("openai synthesis: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("openai synthesis: read audio: %w", err)
	}
	return audio, nil
}
