package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaEmbedder produces embeddings through the official Ollama API
// client. Generation stays on the hand-rolled streaming client; the
// embeddings endpoint has no streaming concerns, so the SDK fits fine.
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

// NewOllamaEmbedder builds an embedder against the given Ollama base
// URL. A trailing /api segment is tolerated so the generation client's
// base URL can be reused as-is.
func NewOllamaEmbedder(model, rawURL string) (*OllamaEmbedder, error) {
	if rawURL == "" {
		rawURL = "http://localhost:11434"
	}
	rawURL = strings.TrimSuffix(rawURL, "/api")
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL %q: %w", rawURL, err)
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &OllamaEmbedder{
		client: api.NewClient(u, httpClient),
		model:  model,
	}, nil
}

// Embed returns the embedding vector for text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  e.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	out := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}
