package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/policypal-ai/voicegraph"
	"github.com/policypal-ai/voicegraph/api"
	"github.com/policypal-ai/voicegraph/config"
	"github.com/policypal-ai/voicegraph/observability"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to config JSON file (defaults apply when empty)")
		envFile    = flag.String("env", "", "Path to env file with API keys (defaults to .env)")
		addr       = flag.String("addr", "", "Listen address (overrides config)")
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
	if *addr != "" {
		cfg.Server.Addr = *addr
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

	runtime, err := voicegraph.New(cfg, apiKey, observer)
	if err != nil {
		log.Fatalf("Failed to build runtime: %v", err)
	}
	if runtime.Index.Count() == 0 {
		log.Printf("Knowledge index %s is empty; answers will fall back to the no-information reply", cfg.Retrieval.IndexPath)
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(runtime.Engine, runtime.Store, runtime.Index).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("Listening on %s", cfg.Server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}
