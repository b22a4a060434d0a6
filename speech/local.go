package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// LocalTranscriber talks to a local whisper-server style HTTP engine: audio
// posted as multipart form data, transcript returned as JSON.
type LocalTranscriber struct {
	url    string
	client *http.Client
}

// NewLocalTranscriber creates a transcriber against a local inference URL.
// A nil client falls back to http.DefaultClient; per-attempt deadlines come
// from the dispatch chain's context.
func NewLocalTranscriber(url string, client *http.Client) *LocalTranscriber {
	if client == nil {
		client = http.DefaultClient
	}
	return &LocalTranscriber{url: url, client: client}
}

func (t *LocalTranscriber) Name() string { return "local_whisper" }

func (t *LocalTranscriber) Transcribe(ctx context.Context, audio []byte) (Transcription, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "turn.wav")
	if err != nil {
		return Transcription{}, fmt.Errorf("local transcription: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return Transcription{}, fmt.Errorf("local transcription: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Transcription{}, fmt.Errorf("local transcription: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, &body)
	if err != nil {
		return Transcription{}, fmt.Errorf("local transcription: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return Transcription{}, fmt.Errorf("local transcription: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Transcription{}, fmt.Errorf("local transcription: engine returned %s", resp.Status)
	}

	var decoded struct {
		Text     string `json:"text"`
		Segments []struct {
			Text string `json:"text"`
		} `json:"segments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Transcription{}, fmt.Errorf("local transcription: decode response: %w", err)
	}

	segments := len(decoded.Segments)
	if segments == 0 && decoded.Text != "" {
		segments = 1
	}

	return Transcription{Text: decoded.Text, SegmentCount: segments}, nil
}

// LocalSynthesizer talks to a chatterbox-style local TTS engine: JSON request
// in, raw audio bytes out.
type LocalSynthesizer struct {
	url    string
	voice  string
	client *http.Client
}

// NewLocalSynthesizer creates a synthesizer against a local TTS URL. voice
// may be empty for the engine default.
func NewLocalSynthesizer(url, voice string, client *http.Client) *LocalSynthesizer {
	if client == nil {
		client = http.DefaultClient
	}
	if voice == "" {
		voice = "en-US-neutral"
	}
	return &LocalSynthesizer{url: url, voice: voice, client: client}
}

func (s *LocalSynthesizer) Name() string { return "chatterbox" }

func (s *LocalSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"text":   text,
		"voice":  s.voice,
		"format": "wav",
	})
	if err != nil {
		return nil, fmt.Errorf("local synthesis: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("local synthesis: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local synthesis: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("local synthesis: engine returned %s", resp.Status)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("local synthesis: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("local synthesis: engine returned empty audio")
	}
	return audio, nil
}
