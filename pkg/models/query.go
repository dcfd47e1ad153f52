package models

// RetrievalQuery selects documents semantically similar to Text, scoped
// to exactly one owner+session pair.
type RetrievalQuery struct {
	OwnerID   string
	SessionID string
	Text      string
	Limit     int
}

// QueryStatus tags a retrieval result so callers can branch on the
// degraded path explicitly instead of catching errors.
type QueryStatus int

const (
	// StatusOK means the index answered; Documents may still be empty.
	StatusOK QueryStatus = iota
	// StatusUnavailable means the index could not be consulted at all.
	// Callers fall back to recency-only context.
	StatusUnavailable
)

// QueryResult is the outcome of one retrieval. Never carries an error:
// retrieval failures degrade, they do not propagate.
type QueryResult struct {
	Status    QueryStatus
	Documents []string
}

// OKResult wraps documents in a successful result.
func OKResult(docs []string) QueryResult {
	return QueryResult{Status: StatusOK, Documents: docs}
}

// Unavailable reports that the index could not serve the query.
func Unavailable() QueryResult {
	return QueryResult{Status: StatusUnavailable}
}
