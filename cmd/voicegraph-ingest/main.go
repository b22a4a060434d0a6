package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/policypal-ai/voicegraph/config"
	"github.com/policypal-ai/voicegraph/knowledge"
	"github.com/policypal-ai/voicegraph/rag"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to config JSON file (defaults apply when empty)")
		envFile    = flag.String("env", "", "Path to env file with API keys (defaults to .env)")
		dataDir    = flag.String("data", "", "Directory of .txt/.md documents to ingest (required)")
		chunkSize  = flag.Int("chunk-size", knowledge.DefaultChunkSize, "Chunk size in characters")
		overlap    = flag.Int("chunk-overlap", knowledge.DefaultChunkOverlap, "Chunk overlap in characters")
	)
	flag.Parse()

	if *dataDir == "" {
		fmt.Fprintln(os.Stderr, "Usage: voicegraph-ingest -data <dir> [-config <file>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

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

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Fatal("OPENAI_API_KEY must be set for embedding")
	}
	embedder := rag.NewOpenAIEmbedder(apiKey, "", cfg.Retrieval.EmbeddingModel)

	index, err := knowledge.Open(cfg.Retrieval.IndexPath)
	if err != nil {
		log.Fatalf("Failed to open index: %v", err)
	}
	log.Printf("Index %s holds %d documents", cfg.Retrieval.IndexPath, index.Count())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	files, err := listDocuments(*dataDir)
	if err != nil {
		log.Fatalf("Failed to scan data dir: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("No .txt or .md documents under %s", *dataDir)
	}

	total := 0
	for _, path := range files {
		n, err := ingestFile(ctx, index, embedder, path, *chunkSize, *overlap)
		if err != nil {
			log.Fatalf("Failed to ingest %s: %v", path, err)
		}
		log.Printf("Ingested %s: %d chunks", path, n)
		total += n
	}

	if err := index.Save(); err != nil {
		log.Fatalf("Failed to save index: %v", err)
	}
	log.Printf("Done: %d chunks added, index now holds %d documents", total, index.Count())
}

func listDocuments(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md":
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func ingestFile(ctx context.Context, index *knowledge.Index, embedder rag.Embedder, path string, chunkSize, overlap int) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	chunks := knowledge.Chunk(string(data), chunkSize, overlap)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return i, err
		}

		embedding, err := embedder.Embed(ctx, chunk)
		if err != nil {
			return i, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		index.Add(knowledge.Document{
			Text: chunk,
			Source: map[string]string{
				"file":  filepath.Base(path),
				"chunk": fmt.Sprint(i),
			},
			Embedding: embedding,
		})
	}
	return len(chunks), nil
}
