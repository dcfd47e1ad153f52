// Package chat drives one request/response cycle end to end: assemble
// context, create the durable placeholder, stream the model's output to
// the caller while accumulating it, and persist exactly what the caller
// was shown.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nexora-ai/nexora-backend/pkg/history"
	"github.com/nexora-ai/nexora-backend/pkg/llm"
	"github.com/nexora-ai/nexora-backend/pkg/logger"
	"github.com/nexora-ai/nexora-backend/pkg/models"
	"github.com/nexora-ai/nexora-backend/pkg/retrieval"
	"github.com/nexora-ai/nexora-backend/pkg/vector"
)

// UnavailableMessage is what the caller sees, and what is persisted,
// when the model endpoint cannot be reached.
const UnavailableMessage = "AI service is currently unavailable. Please try again later."

// turnLabel is the artifact some models echo back from the prompt's
// turn cue. Stripped once from the very start of the accumulated text.
const turnLabel = "AI:"

// errCallerGone marks a failure writing to the caller, as opposed to a
// failure reading from the model.
var errCallerGone = errors.New("caller write failed")

// SendFunc delivers one fragment to the caller. Fragments arrive in
// generation order and must not be reordered.
type SendFunc func(fragment string) error

// Request is one conversational turn.
type Request struct {
	OwnerID   int64
	SessionID int64
	Message   string
	Mode      retrieval.Mode
}

// FileRequest is a turn with already-extracted file text attached. The
// durable exchange stores Message alone; the extracted text goes into
// the prompt and the vector index so later retrieval can surface it.
type FileRequest struct {
	OwnerID     int64
	SessionID   int64
	Message     string
	Attachments []models.Attachment
}

// StreamState is the explicit per-stream value: what accumulated, how
// the stream ended. It exists only for the duration of one call.
type StreamState struct {
	ExchangeID  uint
	Accumulated string
	Terminal    bool
	Err         error
}

// Proxy is the generation stream proxy.
type Proxy struct {
	log       *logger.Logger
	assembler *retrieval.Assembler
	model     llm.Client
	gateway   history.Gateway
	store     vector.Store
}

// New wires a proxy.
func New(log *logger.Logger, assembler *retrieval.Assembler, model llm.Client, gateway history.Gateway, store vector.Store) *Proxy {
	return &Proxy{
		log:       log.With("component", "chat"),
		assembler: assembler,
		model:     model,
		gateway:   gateway,
		store:     store,
	}
}

// Stream runs one turn. Every terminal outcome (success, endpoint
// unavailable, mid-stream failure, caller disconnect) finalizes the
// exchange with exactly the text the caller was shown (or had been
// shown so far). A non-nil error is returned only for failures before
// the stream lifecycle began.
func (p *Proxy) Stream(ctx context.Context, req Request, send SendFunc) (*StreamState, error) {
	contextStr, err := p.assembler.Build(ctx, retrieval.Request{
		OwnerID:   req.OwnerID,
		SessionID: req.SessionID,
		Message:   req.Message,
		Mode:      req.Mode,
	})
	if err != nil {
		return nil, fmt.Errorf("assemble context: %w", err)
	}
	prompt := composePrompt(contextStr, req.Message)

	// Durable placeholder before any network call: the exchange
	// survives even if the model call never completes.
	exchange, err := p.gateway.Create(ctx, req.OwnerID, req.SessionID, req.Message, "")
	if err != nil {
		return nil, fmt.Errorf("create exchange: %w", err)
	}

	return p.run(ctx, exchange.ID, prompt, req.OwnerID, req.SessionID, req.Message, send), nil
}

// StreamWithFiles runs the attachment variant. Before the first
// generated token, one synthetic JSON fragment describing the
// attachments is sent so the caller can render them immediately.
func (p *Proxy) StreamWithFiles(ctx context.Context, req FileRequest, send SendFunc) (*StreamState, error) {
	combined := combineWithExtracts(req.Message, req.Attachments)

	contextStr, err := p.assembler.Build(ctx, retrieval.Request{
		OwnerID:   req.OwnerID,
		SessionID: req.SessionID,
		Message:   combined,
		Mode:      retrieval.Conversational,
		WithFiles: true,
	})
	if err != nil {
		return nil, fmt.Errorf("assemble context: %w", err)
	}
	prompt := composePrompt(contextStr, combined)

	attachmentsJSON, err := json.Marshal(req.Attachments)
	if err != nil {
		return nil, fmt.Errorf("encode attachments: %w", err)
	}
	exchange, err := p.gateway.Create(ctx, req.OwnerID, req.SessionID, req.Message, string(attachmentsJSON))
	if err != nil {
		return nil, fmt.Errorf("create exchange: %w", err)
	}

	header, err := attachmentHeader(req.Attachments)
	if err != nil {
		return nil, fmt.Errorf("encode attachment header: %w", err)
	}
	if err := send(header); err != nil {
		// Caller gone before generation started; the placeholder stays
		// with its empty response finalized below.
		state := &StreamState{ExchangeID: exchange.ID, Terminal: true, Err: fmt.Errorf("%w: %v", errCallerGone, err)}
		p.finalize(ctx, state, "")
		return state, nil
	}

	return p.run(ctx, exchange.ID, prompt, req.OwnerID, req.SessionID, combined, send), nil
}

// run executes the streaming core against an already-created exchange.
// indexText is what gets embedded for future retrieval; for file turns
// it includes the extracted text even though the durable row does not.
func (p *Proxy) run(ctx context.Context, exchangeID uint, prompt string, ownerID, sessionID int64, indexText string, send SendFunc) *StreamState {
	state := &StreamState{ExchangeID: exchangeID}
	var acc strings.Builder

	streamErr := p.model.GenerateStream(ctx, prompt, func(chunk string) error {
		if err := send(chunk); err != nil {
			return fmt.Errorf("%w: %v", errCallerGone, err)
		}
		acc.WriteString(chunk)
		return nil
	})
	state.Accumulated = acc.String()

	switch {
	case streamErr == nil:
		final := stripTurnLabel(state.Accumulated)
		state.Accumulated = final
		state.Terminal = true
		p.finalize(ctx, state, final)
		p.index(ctx, ownerID, sessionID, indexText, final)

	case errors.Is(streamErr, llm.ErrUnavailable):
		p.log.Warn("model endpoint unreachable", "exchange_id", exchangeID, "error", streamErr)
		if err := send(UnavailableMessage); err != nil {
			p.log.Warn("could not deliver unavailability message", "exchange_id", exchangeID, "error", err)
		}
		state.Accumulated = UnavailableMessage
		state.Terminal = true
		state.Err = streamErr
		p.finalize(ctx, state, UnavailableMessage)

	case errors.Is(streamErr, errCallerGone):
		// Caller disconnected mid-stream. Persist the partial
		// accumulation rather than leaving the placeholder empty.
		p.log.Warn("caller disconnected mid-stream; persisting partial response",
			"exchange_id", exchangeID,
			"accumulated_bytes", len(state.Accumulated),
		)
		state.Terminal = true
		state.Err = streamErr
		p.finalize(ctx, state, state.Accumulated)

	default:
		p.log.Error("model stream failed", "exchange_id", exchangeID, "error", streamErr)
		msg := fmt.Sprintf("Error: %s", streamErr)
		if err := send(msg); err != nil {
			p.log.Warn("could not deliver error message", "exchange_id", exchangeID, "error", err)
		}
		state.Accumulated = msg
		state.Terminal = true
		state.Err = streamErr
		p.finalize(ctx, state, msg)
	}

	return state
}

func (p *Proxy) finalize(ctx context.Context, state *StreamState, response string) {
	if err := p.gateway.Finalize(ctx, state.ExchangeID, response); err != nil {
		p.log.Error("finalizing exchange failed", "exchange_id", state.ExchangeID, "error", err)
		if state.Err == nil {
			state.Err = err
		}
	}
}

// index writes the completed exchange into the vector store for future
// semantic retrieval. Indexing failures never affect the response the
// caller already received.
func (p *Proxy) index(ctx context.Context, ownerID, sessionID int64, message, response string) {
	doc := models.NewChatDocument(models.OwnerKey(ownerID), models.OwnerKey(sessionID), message, response)
	if err := p.store.Add(ctx, doc); err != nil {
		p.log.Warn("indexing exchange failed", "doc_id", doc.ID, "error", err)
	}
}

func composePrompt(contextStr, message string) string {
	return fmt.Sprintf("%sUser: %s\nAI:", contextStr, message)
}

// stripTurnLabel removes one leading turn-label artifact plus the
// whitespace around what remains. Text not starting with the label is
// returned verbatim.
func stripTurnLabel(s string) string {
	if strings.HasPrefix(s, turnLabel) {
		return strings.TrimSpace(s[len(turnLabel):])
	}
	return s
}

// combineWithExtracts appends each attachment's extracted text to the
// user message the way it is prompted and indexed.
func combineWithExtracts(message string, attachments []models.Attachment) string {
	var extracts strings.Builder
	for _, att := range attachments {
		if att.ExtractedText == "" {
			continue
		}
		extracts.WriteString(fmt.Sprintf("\n\nText from %s:\n%s", att.Name, att.ExtractedText))
	}
	if extracts.Len() == 0 {
		return message
	}
	return fmt.Sprintf("%s\n\nAttached files:%s", message, extracts.String())
}

// attachmentHeader renders the synthetic first fragment: one JSON line
// describing the attachments, distinguishable from generation text by
// being valid structured data. Extracted text stays out of it.
func attachmentHeader(attachments []models.Attachment) (string, error) {
	type wireAttachment struct {
		Name string `json:"name"`
		Type string `json:"type"`
		URL  string `json:"url"`
		Size int64  `json:"size"`
	}
	out := make([]wireAttachment, len(attachments))
	for i, att := range attachments {
		out[i] = wireAttachment{Name: att.Name, Type: att.Type, URL: att.URL, Size: att.Size}
	}
	data, err := json.Marshal(map[string]any{"attachments": out})
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}
