package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/nexora-ai/nexora-backend/pkg/config"
	"github.com/nexora-ai/nexora-backend/pkg/history"
	"github.com/nexora-ai/nexora-backend/pkg/ingest"
	"github.com/nexora-ai/nexora-backend/pkg/llm"
	"github.com/nexora-ai/nexora-backend/pkg/logger"
	"github.com/nexora-ai/nexora-backend/pkg/vector/provider"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to the configuration file")
	reset      = flag.Bool("reset", true, "Reset the collection before repopulating")
)

// reindex rebuilds the vector index from the relational exchange
// history, typically after a reset or corruption recovery.
func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldRed := color.New(color.FgRed, color.Bold).SprintFunc()

	ctx := context.Background()

	gateway, err := history.Open(log, cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", boldRed("Database open failed:"), err)
		os.Exit(1)
	}

	embedder, err := llm.NewOllamaEmbedder(cfg.Ollama.EmbedModel, cfg.Ollama.BaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", boldRed("Embedder init failed:"), err)
		os.Exit(1)
	}

	store, err := provider.Open(ctx, log, embedder, cfg.Vector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", boldRed("Vector store open failed:"), err)
		os.Exit(1)
	}
	defer store.Close()

	if *reset {
		fmt.Println("Resetting vector collection...")
		if err := store.Reset(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", boldRed("Reset failed:"), err)
			os.Exit(1)
		}
	}

	pipeline := ingest.New(log, store, ingest.Config{
		ChunkSize: cfg.Ingest.ChunkSize,
		BatchSize: cfg.Ingest.BatchSize,
	})

	count, err := pipeline.RepopulateFromHistory(ctx, gateway)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", boldRed("Repopulation failed:"), err)
		os.Exit(1)
	}

	fmt.Printf("%s indexed %d exchanges from history\n", boldGreen("Done:"), count)
}
