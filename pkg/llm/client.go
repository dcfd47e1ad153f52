package llm

import (
	"context"
	"errors"
)

// ErrUnavailable reports that the model endpoint could not be reached at
// all, as opposed to a failure after the stream was established. Callers
// show a fixed unavailability message for this class.
var ErrUnavailable = errors.New("model endpoint unavailable")

// StreamFunc receives generated text fragments in generation order. A
// non-nil return stops the stream and is propagated to the caller.
type StreamFunc func(chunk string) error

// Client is the interface for text generation against a model endpoint.
type Client interface {
	// GenerateStream runs one streaming completion for prompt, invoking
	// fn once per incremental fragment.
	GenerateStream(ctx context.Context, prompt string, fn StreamFunc) error

	// Generate runs one completion and returns the full text.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder converts text into a vector representation for similarity
// comparison.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
