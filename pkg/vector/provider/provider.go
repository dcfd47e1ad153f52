// Package provider selects a vector store backend from configuration.
package provider

import (
	"context"
	"fmt"

	"github.com/nexora-ai/nexora-backend/pkg/config"
	"github.com/nexora-ai/nexora-backend/pkg/llm"
	"github.com/nexora-ai/nexora-backend/pkg/logger"
	"github.com/nexora-ai/nexora-backend/pkg/vector"
	"github.com/nexora-ai/nexora-backend/pkg/vector/local"
	"github.com/nexora-ai/nexora-backend/pkg/vector/qdrant"
)

// Constructor indirections, swapped out in tests.
var (
	openLocal = func(log *logger.Logger, embedder llm.Embedder, path, collection string) (vector.Store, error) {
		return local.Open(log, embedder, path, collection)
	}
	openQdrant = func(ctx context.Context, log *logger.Logger, embedder llm.Embedder, cfg qdrant.Config) (vector.Store, error) {
		return qdrant.Open(ctx, log, embedder, cfg)
	}
)

// Open opens the configured backend. The local backend is the default;
// qdrant serves deployments that already run one.
func Open(ctx context.Context, log *logger.Logger, embedder llm.Embedder, cfg config.VectorConfig) (vector.Store, error) {
	switch cfg.Provider {
	case "", "local":
		log.Info("opening local vector store", "path", cfg.Path, "collection", cfg.Collection)
		return openLocal(log, embedder, cfg.Path, cfg.Collection)
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant provider selected but qdrant config missing")
		}
		log.Info("opening qdrant vector store",
			"host", cfg.Qdrant.Host,
			"port", cfg.Qdrant.Port,
			"collection", cfg.Collection,
		)
		return openQdrant(ctx, log, embedder, qdrant.Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Collection,
			VectorDim:  cfg.Qdrant.VectorDim,
		})
	default:
		return nil, fmt.Errorf("unknown vector store provider %q", cfg.Provider)
	}
}
