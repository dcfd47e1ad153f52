package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nexora-ai/nexora-backend/pkg/chat"
	"github.com/nexora-ai/nexora-backend/pkg/config"
	"github.com/nexora-ai/nexora-backend/pkg/history"
	"github.com/nexora-ai/nexora-backend/pkg/llm"
	"github.com/nexora-ai/nexora-backend/pkg/logger"
	"github.com/nexora-ai/nexora-backend/pkg/retrieval"
	"github.com/nexora-ai/nexora-backend/pkg/server"
	"github.com/nexora-ai/nexora-backend/pkg/vector/provider"
)

var configPath = flag.String("config", "config.yaml", "Path to the configuration file")

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupts
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info("shutting down")
		cancel()
	}()

	gateway, err := history.Open(log, cfg.Database.Path)
	if err != nil {
		log.Fatal("opening chat database failed", "error", err)
	}

	embedder, err := llm.NewOllamaEmbedder(cfg.Ollama.EmbedModel, cfg.Ollama.BaseURL)
	if err != nil {
		log.Fatal("initializing embedder failed", "error", err)
	}

	store, err := provider.Open(ctx, log, embedder, cfg.Vector)
	if err != nil {
		log.Fatal("opening vector store failed", "error", err)
	}
	defer store.Close()

	model := llm.NewOllamaClient(
		cfg.Ollama.Model,
		cfg.Ollama.BaseURL,
		time.Duration(cfg.Ollama.TimeoutSecs)*time.Second,
	).WithTemperature(*cfg.Ollama.Temperature)

	assembler := retrieval.NewAssembler(log, store, gateway, cfg.Context)
	proxy := chat.New(log, assembler, model, gateway, store)
	srv := server.New(log, proxy, cfg.Server.Mode)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	go func() {
		log.Info("starting chat service", "addr", cfg.Server.Addr, "model", cfg.Ollama.Model)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal("HTTP server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()

	// Shutdown the server gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
}
