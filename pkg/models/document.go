package models

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Document kinds stored in the vector collection.
const (
	KindChat   = "chat"
	KindCorpus = "corpus"
)

// Reserved identity under which the domain corpus is indexed. It is not
// a real owner or session; queries scoped to it never see user data and
// vice versa.
const (
	CorpusOwnerID   = "rag"
	CorpusSessionID = "rag"
)

// Metadata keys used in the vector collection filter.
const (
	MetaOwnerID   = "owner_id"
	MetaSessionID = "session_id"
	MetaKind      = "kind"
)

// ContextDocument is one embedded unit of retrievable text. Documents are
// immutable; they disappear only when the whole collection is reset.
type ContextDocument struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// RenderExchange formats a message/response pair the way it is embedded
// and the way it is spliced into prompts.
func RenderExchange(message, response string) string {
	return fmt.Sprintf("User: %s\nAI: %s", message, response)
}

// NewChatDocument builds a document for a completed exchange. The ID
// combines owner, session and a random component, so collisions are
// negligible.
func NewChatDocument(ownerID, sessionID, message, response string) ContextDocument {
	return ContextDocument{
		ID:   fmt.Sprintf("chat_%s_%s_%s", ownerID, sessionID, uuid.NewString()),
		Text: RenderExchange(message, response),
		Metadata: map[string]string{
			MetaOwnerID:   ownerID,
			MetaSessionID: sessionID,
			MetaKind:      KindChat,
		},
	}
}

// NewCorpusDocument builds a document for one ingested corpus chunk,
// reserved under the corpus identity.
func NewCorpusDocument(chunk, response string) ContextDocument {
	return ContextDocument{
		ID:   fmt.Sprintf("chat_%s_%s_%s", CorpusOwnerID, CorpusSessionID, uuid.NewString()),
		Text: RenderExchange(chunk, response),
		Metadata: map[string]string{
			MetaOwnerID:   CorpusOwnerID,
			MetaSessionID: CorpusSessionID,
			MetaKind:      KindCorpus,
		},
	}
}

// OwnerKey converts a relational owner/session ID to its metadata form.
func OwnerKey(id int64) string { return strconv.FormatInt(id, 10) }
