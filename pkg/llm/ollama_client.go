package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient talks to the Ollama generate API over plain HTTP. The
// wire format is one JSON object per line, each carrying an incremental
// "response" fragment.
type OllamaClient struct {
	baseURL     string
	httpClient  *http.Client
	modelName   string
	temperature float32
}

// OllamaRequest represents a request to the Ollama generate endpoint.
type OllamaRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options,omitempty"`
}

// Options represents parameter options for the model. Temperature is
// always sent; zero is a valid, deliberate setting.
type Options struct {
	Temperature float32 `json:"temperature"`
}

// OllamaResponse represents one chunk of a streamed response.
type OllamaResponse struct {
	Response string `json:"response"`
	Model    string `json:"model"`
	Done     bool   `json:"done"`
}

// NewOllamaClient creates a client for a local or remote Ollama server.
func NewOllamaClient(modelName, baseURL string, timeout time.Duration) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434/api"
	}
	if timeout == 0 {
		timeout = 5 * time.Minute // generations can run long
	}
	return &OllamaClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		modelName:   modelName,
		temperature: 0.7,
	}
}

// WithTemperature overrides the sampling temperature.
func (c *OllamaClient) WithTemperature(t float32) *OllamaClient {
	c.temperature = t
	return c
}

// GenerateStream sends the prompt with stream enabled and forwards each
// fragment to fn in arrival order. Lines that fail to parse are skipped
// so a single garbled chunk does not kill the stream.
func (c *OllamaClient) GenerateStream(ctx context.Context, prompt string, fn StreamFunc) error {
	req := OllamaRequest{
		Model:   c.modelName,
		Prompt:  prompt,
		Stream:  true,
		Options: Options{Temperature: c.temperature},
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Endpoint not reachable at all; connection-failure class.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, body)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if len(strings.TrimSpace(line)) == 0 {
			continue
		}

		var chunk OllamaResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if chunk.Response == "" && !chunk.Done {
			continue
		}
		if chunk.Response != "" {
			if err := fn(chunk.Response); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading response stream: %w", err)
	}
	return nil
}

// Generate runs one completion and concatenates the streamed fragments.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	var full strings.Builder
	err := c.GenerateStream(ctx, prompt, func(chunk string) error {
		full.WriteString(chunk)
		return nil
	})
	if err != nil {
		return "", err
	}
	return full.String(), nil
}
