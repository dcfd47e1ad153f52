// Package retrieval assembles the prompt context for one generation
// turn. It fuses semantically relevant past exchanges from the vector
// store with a recency window from the relational history, and falls
// back to recency alone whenever the semantic path cannot be served.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexora-ai/nexora-backend/pkg/config"
	"github.com/nexora-ai/nexora-backend/pkg/history"
	"github.com/nexora-ai/nexora-backend/pkg/logger"
	"github.com/nexora-ai/nexora-backend/pkg/models"
	"github.com/nexora-ai/nexora-backend/pkg/vector"
)

// Mode selects how context is assembled.
type Mode int

const (
	// Conversational fuses semantic hits with the last few exchanges.
	Conversational Mode = iota
	// DomainAugmented additionally injects the most relevant corpus
	// chunks and keeps only the single most recent exchange.
	DomainAugmented
)

// System instructions prefixed to every prompt. The file variant tells
// the model the message carries text extracted from uploads.
const (
	systemInstruction = "You are Nexora AI, a helpful and knowledgeable assistant. " +
		"Maintain context of the conversation and provide accurate, concise responses. " +
		"Remember previous information shared by the user.\n\n"

	fileSystemInstruction = "You are Nexora AI, a helpful and knowledgeable assistant. " +
		"The user is sending you messages with attached files which have been converted to text. " +
		"Please analyze both the message and the extracted text to provide an appropriate response. " +
		"Be concise and helpful, focusing on what the files actually contain.\n\n"
)

// Section labels inside the assembled context.
const (
	labelSemantic   = "Relevant conversation history:\n"
	labelDomain     = "Relevant domain knowledge:\n"
	labelRecent     = "Recent conversation:\n"
	labelMostRecent = "Most recent exchange:\n"
)

// Request describes one context-assembly call.
type Request struct {
	OwnerID   int64
	SessionID int64
	Message   string
	Mode      Mode
	// WithFiles switches to the attachment-aware system instruction.
	WithFiles bool
}

// Assembler builds prompt context. It only reads its collaborators;
// assembling context has no side effects.
type Assembler struct {
	store   vector.Store
	history history.Provider
	cfg     config.ContextConfig
	log     *logger.Logger
}

// NewAssembler wires the assembler. cfg must be fully populated; use
// config.Default() for the standard limits.
func NewAssembler(log *logger.Logger, store vector.Store, hist history.Provider, cfg config.ContextConfig) *Assembler {
	return &Assembler{
		store:   store,
		history: hist,
		cfg:     cfg,
		log:     log.With("component", "retrieval"),
	}
}

// Build returns the context string for the request: system instruction,
// then semantic history, then domain knowledge when the mode asks for
// it, then the recency section. The caller appends the current message
// and turn cue.
//
// Whenever the semantic path cannot be served (the index reports
// unavailable, or the recency fetch alongside it fails) Build degrades
// to recency-only context with a wider window. The degraded result has
// the same shape; only the content differs.
func (a *Assembler) Build(ctx context.Context, req Request) (string, error) {
	res := a.store.Query(ctx, models.RetrievalQuery{
		OwnerID:   models.OwnerKey(req.OwnerID),
		SessionID: models.OwnerKey(req.SessionID),
		Text:      req.Message,
		Limit:     a.cfg.SemanticLimit,
	})
	if res.Status == models.StatusUnavailable {
		return a.fallback(ctx, req)
	}

	var b strings.Builder
	b.WriteString(a.systemFor(req))

	if len(res.Documents) > 0 {
		b.WriteString(labelSemantic)
		for _, doc := range res.Documents {
			b.WriteString(doc)
			b.WriteString("\n\n")
		}
	}

	if req.Mode == DomainAugmented {
		corpus := a.store.Query(ctx, models.RetrievalQuery{
			OwnerID:   models.CorpusOwnerID,
			SessionID: models.CorpusSessionID,
			Text:      req.Message,
			Limit:     a.cfg.DomainLimit,
		})
		// A missing corpus section is not worth losing the semantic
		// section we already have; skip it and move on.
		if corpus.Status == models.StatusOK && len(corpus.Documents) > 0 {
			b.WriteString(labelDomain)
			for _, doc := range corpus.Documents {
				b.WriteString(doc)
				b.WriteString("\n\n")
			}
		} else if corpus.Status == models.StatusUnavailable {
			a.log.Warn("domain corpus unavailable; omitting section", "session_id", req.SessionID)
		}
	}

	window := a.cfg.RecencyWindow
	recentLabel := labelRecent
	if req.Mode == DomainAugmented {
		window = a.cfg.DomainRecencyWindow
		recentLabel = labelMostRecent
	}
	recent, err := a.history.MostRecent(ctx, req.SessionID, window)
	if err != nil {
		a.log.Warn("recency fetch failed alongside semantic path", "error", err)
		return a.fallback(ctx, req)
	}
	if len(recent) > 0 {
		b.WriteString(recentLabel)
		writeChronological(&b, recent)
	}

	return b.String(), nil
}

// fallback builds recency-only context from the last FallbackWindow
// exchanges. This is the only path that can fail: with both the index
// and the history gone there is nothing to assemble.
func (a *Assembler) fallback(ctx context.Context, req Request) (string, error) {
	a.log.Warn("semantic retrieval unavailable; using recency-only context",
		"owner_id", req.OwnerID,
		"session_id", req.SessionID,
	)
	recent, err := a.history.MostRecent(ctx, req.SessionID, a.cfg.FallbackWindow)
	if err != nil {
		return "", fmt.Errorf("recency-only context fetch: %w", err)
	}
	var b strings.Builder
	b.WriteString(a.systemFor(req))
	writeChronological(&b, recent)
	return b.String(), nil
}

func (a *Assembler) systemFor(req Request) string {
	if req.WithFiles {
		return fileSystemInstruction
	}
	return systemInstruction
}

// writeChronological renders exchanges oldest first regardless of the
// descending order the provider returns them in.
func writeChronological(b *strings.Builder, recent []models.ChatExchange) {
	for i := len(recent) - 1; i >= 0; i-- {
		b.WriteString(models.RenderExchange(recent[i].Message, recent[i].Response))
		b.WriteString("\n\n")
	}
}
