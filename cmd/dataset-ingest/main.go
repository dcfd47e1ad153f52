package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/nexora-ai/nexora-backend/pkg/config"
	"github.com/nexora-ai/nexora-backend/pkg/ingest"
	"github.com/nexora-ai/nexora-backend/pkg/llm"
	"github.com/nexora-ai/nexora-backend/pkg/logger"
	"github.com/nexora-ai/nexora-backend/pkg/vector/provider"
)

var (
	configPath  = flag.String("config", "config.yaml", "Path to the configuration file")
	datasetPath = flag.String("dataset", "", "CSV dataset to ingest (defaults to the configured path)")
)

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

	path := *datasetPath
	if path == "" {
		path = cfg.Ingest.DatasetPath
	}

	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldRed := color.New(color.FgRed, color.Bold).SprintFunc()

	ctx := context.Background()

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

	fmt.Printf("Ingesting dataset from %s\n", path)

	pipeline := ingest.New(log, store, ingest.Config{
		ChunkSize: cfg.Ingest.ChunkSize,
		BatchSize: cfg.Ingest.BatchSize,
	})

	count, err := pipeline.IngestCSV(ctx, path)
	if err != nil {
		var schemaErr *ingest.SchemaError
		if errors.As(err, &schemaErr) {
			fmt.Fprintf(os.Stderr, "%s %v\n", boldRed("Dataset rejected:"), schemaErr)
		} else {
			fmt.Fprintf(os.Stderr, "%s %v\n", boldRed("Ingestion failed:"), err)
		}
		os.Exit(1)
	}

	fmt.Printf("%s ingested %d documents\n", boldGreen("Done:"), count)
}
