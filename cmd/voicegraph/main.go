package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/policypal-ai/voicegraph"
	"github.com/policypal-ai/voicegraph/audio"
	"github.com/policypal-ai/voicegraph/call"
	"github.com/policypal-ai/voicegraph/config"
	"github.com/policypal-ai/voicegraph/dispatch"
	"github.com/policypal-ai/voicegraph/observability"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to config JSON file (defaults apply when empty)")
		envFile    = flag.String("env", "", "Path to env file with API keys (defaults to .env)")
		maxTurns   = flag.Int("max-turns", 0, "Maximum conversation turns (overrides config)")
		captureCmd = flag.String("capture", "arecord", "Command used to record one utterance")
		playerCmd  = flag.String("player", "", "Command used to play agent audio (default from config, else aplay)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("Failed to load env file: %v", err)
		}
	} else if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg := config.DefaultConfig()
	if *configFile != "" {
		loaded, err := config.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}
	if *maxTurns > 0 {
		cfg.Conversation.MaxTurns = *maxTurns
	}
	player := *playerCmd
	if player == "" {
		player = cfg.Audio.PlayerCommand
	}
	if player == "" {
		player = "aplay"
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	observer := observability.NewSlogObserver(logger)

	apiKey := config.APIKey()
	if apiKey == "" {
		log.Fatal("OPENROUTER_API_KEY or OPENAI_API_KEY must be set")
	}

	runtime, err := voicegraph.New(cfg, apiKey, observer,
		call.WithCapture(audio.NewExecCapture(*captureCmd,
			"-q", "-f", "S16_LE", "-c", "1",
			"-r", fmt.Sprint(cfg.Audio.SampleRate),
			"-d", fmt.Sprint(int(cfg.Audio.MaxRecording().Seconds())))),
		call.WithPlayer(audio.NewExecPlayer(player, "-q")),
	)
	if err != nil {
		log.Fatalf("Failed to build runtime: %v", err)
	}
	if runtime.Index.Count() == 0 {
		log.Printf("Knowledge index %s is empty; answers will fall back to the no-information reply", cfg.Retrieval.IndexPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	session, err := runtime.Engine.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Conversation ended with error: %v", err)
	}
	if session == nil {
		os.Exit(1)
	}

	printSummary(session)
}

func printSummary(s *call.Session) {
	snap := s.Metrics().Snapshot()

	fmt.Println()
	fmt.Println("Call summary")
	fmt.Printf("  Session:  %s\n", s.ID())
	fmt.Printf("  Turns:    %d\n", s.TurnCount())
	fmt.Printf("  Intent:   %s\n", s.FinalIntent())
	if s.Incomplete() {
		fmt.Println("  Status:   aborted")
	}
	fmt.Printf("  STT time: %s over %d calls\n", snap.TranscriptionLatency, snap.CallCount(dispatch.KindTranscription))
	fmt.Printf("  TTS time: %s over %d calls\n", snap.SynthesisLatency, snap.CallCount(dispatch.KindSynthesis))
	if snap.FallbackCount > 0 {
		fmt.Printf("  Fallbacks: %d\n", snap.FallbackCount)
	}
	for _, desc := range snap.Errors {
		fmt.Printf("  Error: %s\n", desc)
	}

	fmt.Println("\nTranscript:")
	for _, line := range s.Transcript() {
		fmt.Printf("  %s\n", line)
	}
}
