package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/nexora-ai/nexora-backend/pkg/chat"
	"github.com/nexora-ai/nexora-backend/pkg/config"
	"github.com/nexora-ai/nexora-backend/pkg/history"
	"github.com/nexora-ai/nexora-backend/pkg/llm"
	"github.com/nexora-ai/nexora-backend/pkg/logger"
	"github.com/nexora-ai/nexora-backend/pkg/retrieval"
	"github.com/nexora-ai/nexora-backend/pkg/vector/provider"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to the configuration file")
	ownerID    = flag.Int64("owner", 1, "Owner ID for the chat session")
	sessionID  = flag.Int64("session", 1, "Session ID for the chat session")
	domainMode = flag.Bool("domain", false, "Augment replies with the ingested domain corpus")
)

// Interactive terminal chat against the full retrieval pipeline. Every
// exchange is persisted and indexed exactly as it would be through the
// HTTP service.
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

	// Initialize context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupts
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("\nShutting down...")
		cancel()
		os.Exit(0)
	}()

	gateway, err := history.Open(log, cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening chat database: %v\n", err)
		os.Exit(1)
	}

	embedder, err := llm.NewOllamaEmbedder(cfg.Ollama.EmbedModel, cfg.Ollama.BaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing embedder: %v\n", err)
		os.Exit(1)
	}

	store, err := provider.Open(ctx, log, embedder, cfg.Vector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening vector store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	model := llm.NewOllamaClient(
		cfg.Ollama.Model,
		cfg.Ollama.BaseURL,
		time.Duration(cfg.Ollama.TimeoutSecs)*time.Second,
	).WithTemperature(*cfg.Ollama.Temperature)

	assembler := retrieval.NewAssembler(log, store, gateway, cfg.Context)
	proxy := chat.New(log, assembler, model, gateway, store)

	mode := retrieval.Conversational
	if *domainMode {
		mode = retrieval.DomainAugmented
	}

	// Print welcome message
	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Println(boldGreen("Nexora Chat Interface"))
	fmt.Printf("Using model: %s\n", boldCyan(cfg.Ollama.Model))
	fmt.Printf("Owner: %d, Session: %d\n", *ownerID, *sessionID)
	fmt.Println("Type your message and press Enter. Type 'exit' or press Ctrl+C to quit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		// Get user input
		fmt.Print(boldGreen("You: "))
		if !scanner.Scan() {
			break
		}
		userInput := scanner.Text()

		// Check for exit command
		if strings.ToLower(strings.TrimSpace(userInput)) == "exit" {
			break
		}
		if strings.TrimSpace(userInput) == "" {
			continue
		}

		fmt.Print(boldCyan("Assistant: "))
		state, err := proxy.Stream(ctx, chat.Request{
			OwnerID:   *ownerID,
			SessionID: *sessionID,
			Message:   userInput,
			Mode:      mode,
		}, func(fragment string) error {
			fmt.Print(fragment)
			return nil
		})
		fmt.Println()
		fmt.Println()

		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if state.Err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", state.Err)
			fmt.Println("Make sure Ollama is running with: ollama serve")
		}
	}
}
