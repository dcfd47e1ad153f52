package vector

import (
	"context"
	"strings"

	"github.com/nexora-ai/nexora-backend/pkg/models"
)

// Store defines the interface for the embedded-document index.
//
// Query never returns an error: a store that cannot answer reports
// StatusUnavailable and the caller degrades to recency-only context.
type Store interface {
	// Add inserts one document. Documents with blank text or missing
	// scope metadata are skipped, not rejected.
	Add(ctx context.Context, doc models.ContextDocument) error

	// BatchAdd inserts many documents in one call, skipping individually
	// invalid entries. No-op on an empty slice.
	BatchAdd(ctx context.Context, docs []models.ContextDocument) error

	// Query returns up to q.Limit document texts most similar to q.Text,
	// scoped to exactly q.OwnerID and q.SessionID.
	Query(ctx context.Context, q models.RetrievalQuery) models.QueryResult

	// Reset deletes and recreates the collection with no documents.
	Reset(ctx context.Context) error

	// Close releases resources used by the store.
	Close() error
}

// Valid reports whether a document carries everything the index
// requires: non-blank text and both scope metadata fields.
func Valid(doc models.ContextDocument) bool {
	if strings.TrimSpace(doc.ID) == "" || strings.TrimSpace(doc.Text) == "" {
		return false
	}
	if strings.TrimSpace(doc.Metadata[models.MetaOwnerID]) == "" {
		return false
	}
	if strings.TrimSpace(doc.Metadata[models.MetaSessionID]) == "" {
		return false
	}
	return true
}
