// Package history holds the relational side of a conversation: the
// durable exchange rows the streaming proxy writes and the recency
// window the context assembler reads.
package history

import (
	"context"

	"github.com/nexora-ai/nexora-backend/pkg/models"
)

// Provider supplies the recency window for a session.
type Provider interface {
	// MostRecent returns up to n exchanges for the session, newest
	// first.
	MostRecent(ctx context.Context, sessionID int64, n int) ([]models.ChatExchange, error)
}

// Gateway persists exchanges through their lifecycle: a placeholder row
// with an empty response is created before any model call, and finalized
// exactly once with whatever the caller was shown.
type Gateway interface {
	Provider

	// Create inserts the placeholder row. attachments is an optional
	// JSON-encoded []models.Attachment.
	Create(ctx context.Context, ownerID, sessionID int64, message, attachments string) (*models.ChatExchange, error)

	// Finalize sets the response on an existing exchange.
	Finalize(ctx context.Context, exchangeID uint, response string) error

	// EnumerateAll walks the full exchange history in insertion order,
	// batchSize rows at a time, without loading everything at once.
	EnumerateAll(ctx context.Context, batchSize int, fn func(batch []models.ChatExchange) error) error
}
