// Package ingest loads bulk text into the vector store: a tabular
// domain corpus for retrieval-augmented answers, and the full relational
// exchange history when the index needs rebuilding.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nexora-ai/nexora-backend/pkg/history"
	"github.com/nexora-ai/nexora-backend/pkg/logger"
	"github.com/nexora-ai/nexora-backend/pkg/models"
	"github.com/nexora-ai/nexora-backend/pkg/vector"
)

// Required dataset columns.
const (
	ColumnQuery    = "issue/query"
	ColumnResponse = "response"
)

// SchemaError reports a dataset that cannot be ingested at all: missing
// file or missing required columns. Nothing is written when it occurs.
type SchemaError struct {
	Path    string
	Missing []string
	Cause   error
}

func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("dataset %s is missing required columns: %s", e.Path, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("dataset %s cannot be read: %v", e.Path, e.Cause)
}

func (e *SchemaError) Unwrap() error { return e.Cause }

// Config holds the ingestion tunables.
type Config struct {
	ChunkSize int // rune length of each embedded chunk
	BatchSize int // documents accumulated before a flush
}

// Pipeline performs batched ingestion into a vector store.
type Pipeline struct {
	log   *logger.Logger
	store vector.Store
	cfg   Config
}

// New wires a pipeline. Zero config fields fall back to the standard
// 300-rune chunks and batches of 100.
func New(log *logger.Logger, store vector.Store, cfg Config) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 300
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Pipeline{log: log.With("component", "ingest"), store: store, cfg: cfg}
}

// IngestCSV loads a (query, response) dataset into the store under the
// reserved corpus identity. The collection is reset first: ingestion
// fully replaces prior corpus content. Each query field is chunked and
// every chunk is paired with the row's full response.
//
// Schema problems abort before any write and come back as *SchemaError.
// Individually bad rows are skipped, not fatal.
func (p *Pipeline) IngestCSV(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, &SchemaError{Path: path, Cause: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // extra columns are ignored

	header, err := r.Read()
	if err != nil {
		return 0, &SchemaError{Path: path, Cause: fmt.Errorf("read header: %w", err)}
	}
	queryIdx, responseIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case ColumnQuery:
			queryIdx = i
		case ColumnResponse:
			responseIdx = i
		}
	}
	var missing []string
	if queryIdx < 0 {
		missing = append(missing, ColumnQuery)
	}
	if responseIdx < 0 {
		missing = append(missing, ColumnResponse)
	}
	if len(missing) > 0 {
		return 0, &SchemaError{Path: path, Missing: missing}
	}

	if err := p.store.Reset(ctx); err != nil {
		return 0, fmt.Errorf("reset collection before ingest: %w", err)
	}

	total := 0
	batch := make([]models.ContextDocument, 0, p.cfg.BatchSize)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			p.log.Warn("skipping malformed record", "error", err)
			continue
		}
		if queryIdx >= len(record) || responseIdx >= len(record) {
			p.log.Warn("skipping short record", "fields", len(record))
			continue
		}
		query := record[queryIdx]
		response := record[responseIdx]
		for _, chunk := range ChunkText(query, p.cfg.ChunkSize) {
			batch = append(batch, models.NewCorpusDocument(chunk, response))
			if len(batch) >= p.cfg.BatchSize {
				if err := p.flush(ctx, batch); err != nil {
					return total, err
				}
				total += len(batch)
				batch = batch[:0]
			}
		}
	}
	if len(batch) > 0 {
		if err := p.flush(ctx, batch); err != nil {
			return total, err
		}
		total += len(batch)
	}

	p.log.Info("dataset ingested", "path", path, "documents", total)
	return total, nil
}

// RepopulateFromHistory rebuilds conversational documents from the full
// relational exchange history, in the same batched fashion. Used after
// a reset or corruption recovery.
func (p *Pipeline) RepopulateFromHistory(ctx context.Context, gateway history.Gateway) (int, error) {
	total := 0
	err := gateway.EnumerateAll(ctx, p.cfg.BatchSize, func(rows []models.ChatExchange) error {
		docs := make([]models.ContextDocument, 0, len(rows))
		for _, row := range rows {
			if strings.TrimSpace(row.Message) == "" || strings.TrimSpace(row.Response) == "" {
				continue // never index blank exchanges
			}
			docs = append(docs, models.NewChatDocument(
				models.OwnerKey(row.OwnerID),
				models.OwnerKey(row.SessionID),
				row.Message,
				row.Response,
			))
		}
		if err := p.flush(ctx, docs); err != nil {
			return err
		}
		total += len(docs)
		p.log.Info("repopulation progress", "documents", total)
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("repopulate from history: %w", err)
	}
	return total, nil
}

func (p *Pipeline) flush(ctx context.Context, docs []models.ContextDocument) error {
	if err := p.store.BatchAdd(ctx, docs); err != nil {
		return fmt.Errorf("batch insert: %w", err)
	}
	return nil
}
