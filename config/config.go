// Package config holds the JSON-backed configuration for the voice agent.
// A Config is built by merging a loaded file over defaults; secrets never
// live in the file and come from the environment instead.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// AudioConfig tunes capture and playback.
type AudioConfig struct {
	SampleRate        int     `json:"sample_rate,omitempty"`
	MaxRecordingSecs  float64 `json:"max_recording_secs,omitempty"`
	SilenceSecs       float64 `json:"silence_secs,omitempty"`
	ActivityThreshold float64 `json:"activity_threshold,omitempty"`
	LogsDir           string  `json:"logs_dir,omitempty"`
	PlayerCommand     string  `json:"player_command,omitempty"`
	PrerecordedDir    string  `json:"prerecorded_dir,omitempty"`
}

// DefaultAudioConfig returns capture defaults for 16 kHz mono voice.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:        16000,
		MaxRecordingSecs:  15,
		SilenceSecs:       2,
		ActivityThreshold: 500,
		LogsDir:           "logs",
	}
}

// Merge applies non-zero values from source into c.
func (c *AudioConfig) Merge(source *AudioConfig) {
	if source.SampleRate > 0 {
		c.SampleRate = source.SampleRate
	}
	if source.MaxRecordingSecs > 0 {
		c.MaxRecordingSecs = source.MaxRecordingSecs
	}
	if source.SilenceSecs > 0 {
		c.SilenceSecs = source.SilenceSecs
	}
	if source.ActivityThreshold > 0 {
		c.ActivityThreshold = source.ActivityThreshold
	}
	if source.LogsDir != "" {
		c.LogsDir = source.LogsDir
	}
	if source.PlayerCommand != "" {
		c.PlayerCommand = source.PlayerCommand
	}
	if source.PrerecordedDir != "" {
		c.PrerecordedDir = source.PrerecordedDir
	}
}

// MaxRecording returns the capture window as a duration.
func (c AudioConfig) MaxRecording() time.Duration {
	return time.Duration(c.MaxRecordingSecs * float64(time.Second))
}

// Silence returns the stop-on-silence window as a duration.
func (c AudioConfig) Silence() time.Duration {
	return time.Duration(c.SilenceSecs * float64(time.Second))
}

// ConversationConfig bounds the call loop.
type ConversationConfig struct {
	MaxTurns int `json:"max_turns,omitempty"`
	MaxSteps int `json:"max_steps,omitempty"`
}

// DefaultConversationConfig returns the call-loop defaults.
func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{MaxTurns: 5, MaxSteps: 100}
}

// Merge applies non-zero values from source into c.
func (c *ConversationConfig) Merge(source *ConversationConfig) {
	if source.MaxTurns > 0 {
		c.MaxTurns = source.MaxTurns
	}
	if source.MaxSteps > 0 {
		c.MaxSteps = source.MaxSteps
	}
}

// RetrievalConfig configures the knowledge index and search.
type RetrievalConfig struct {
	IndexPath      string `json:"index_path,omitempty"`
	TopK           int    `json:"top_k,omitempty"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

// DefaultRetrievalConfig returns retrieval defaults.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		IndexPath: "insurance_index.json",
		TopK:      3,
	}
}

// Merge applies non-zero values from source into c.
func (c *RetrievalConfig) Merge(source *RetrievalConfig) {
	if source.IndexPath != "" {
		c.IndexPath = source.IndexPath
	}
	if source.TopK > 0 {
		c.TopK = source.TopK
	}
	if source.EmbeddingModel != "" {
		c.EmbeddingModel = source.EmbeddingModel
	}
}

// GenerationConfig configures the reply model.
type GenerationConfig struct {
	Model       string  `json:"model,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	TopP        float32 `json:"top_p,omitempty"`
}

// DefaultGenerationConfig returns the OpenRouter defaults.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Model:       "openai/gpt-4o-mini",
		BaseURL:     "https://openrouter.ai/api/v1",
		MaxTokens:   150,
		Temperature: 0.7,
		TopP:        0.9,
	}
}

// Merge applies non-zero values from source into c.
func (c *GenerationConfig) Merge(source *GenerationConfig) {
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.MaxTokens > 0 {
		c.MaxTokens = source.MaxTokens
	}
	if source.Temperature > 0 {
		c.Temperature = source.Temperature
	}
	if source.TopP > 0 {
		c.TopP = source.TopP
	}
}

// SpeechConfig names the transcription and synthesis backends in fallback
// order and bounds each attempt.
type SpeechConfig struct {
	TranscriberURL string  `json:"transcriber_url,omitempty"`
	SynthesizerURL string  `json:"synthesizer_url,omitempty"`
	Voice          string  `json:"voice,omitempty"`
	AttemptSecs    float64 `json:"attempt_secs,omitempty"`
	WhisperModel   string  `json:"whisper_model,omitempty"`
	SynthesisModel string  `json:"synthesis_model,omitempty"`
}

// DefaultSpeechConfig returns local-engine defaults with cloud fallback
// models.
func DefaultSpeechConfig() SpeechConfig {
	return SpeechConfig{
		TranscriberURL: "http://127.0.0.1:8080/inference",
		SynthesizerURL: "http://127.0.0.1:8004/v1/audio/speech",
		AttemptSecs:    30,
	}
}

// Merge applies non-zero values from source into c.
func (c *SpeechConfig) Merge(source *SpeechConfig) {
	if source.TranscriberURL != "" {
		c.TranscriberURL = source.TranscriberURL
	}
	if source.SynthesizerURL != "" {
		c.SynthesizerURL = source.SynthesizerURL
	}
	if source.Voice != "" {
		c.Voice = source.Voice
	}
	if source.AttemptSecs > 0 {
		c.AttemptSecs = source.AttemptSecs
	}
	if source.WhisperModel != "" {
		c.WhisperModel = source.WhisperModel
	}
	if source.SynthesisModel != "" {
		c.SynthesisModel = source.SynthesisModel
	}
}

// AttemptTimeout returns the per-backend attempt bound as a duration.
func (c SpeechConfig) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptSecs * float64(time.Second))
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `json:"addr,omitempty"`
}

// DefaultServerConfig returns the default listen address.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{Addr: ":8888"}
}

// Merge applies non-zero values from source into c.
func (c *ServerConfig) Merge(source *ServerConfig) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}
}

// Config holds initialization parameters for all agent subsystems.
type Config struct {
	Audio        AudioConfig        `json:"audio"`
	Conversation ConversationConfig `json:"conversation"`
	Retrieval    RetrievalConfig    `json:"retrieval"`
	Generation   GenerationConfig   `json:"generation"`
	Speech       SpeechConfig       `json:"speech"`
	Server       ServerConfig       `json:"server"`
}

// DefaultConfig returns a Config with defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Audio:        DefaultAudioConfig(),
		Conversation: DefaultConversationConfig(),
		Retrieval:    DefaultRetrievalConfig(),
		Generation:   DefaultGenerationConfig(),
		Speech:       DefaultSpeechConfig(),
		Server:       DefaultServerConfig(),
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Audio.Merge(&source.Audio)
	c.Conversation.Merge(&source.Conversation)
	c.Retrieval.Merge(&source.Retrieval)
	c.Generation.Merge(&source.Generation)
	c.Speech.Merge(&source.Speech)
	c.Server.Merge(&source.Server)
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// APIKey returns the generation/embedding credential from the environment.
// OPENROUTER_API_KEY wins over OPENAI_API_KEY.
func APIKey() string {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("OPENAI_API_KEY")
}
