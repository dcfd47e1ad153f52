// Package local implements the embedded, file-backed vector store. A
// collection lives in one directory: manifest.json identifies the store
// and documents.ndjson holds one embedded document per line. The whole
// collection is held in memory; similarity is brute-force cosine over
// the metadata-filtered subset, which is plenty for per-session chat
// history.
package local

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nexora-ai/nexora-backend/pkg/llm"
	"github.com/nexora-ai/nexora-backend/pkg/logger"
	"github.com/nexora-ai/nexora-backend/pkg/models"
	"github.com/nexora-ai/nexora-backend/pkg/vector"
)

const (
	manifestFile  = "manifest.json"
	documentsFile = "documents.ndjson"
)

type manifest struct {
	Collection string    `json:"collection"`
	CreatedAt  time.Time `json:"created_at"`
}

type storedDoc struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"embedding"`
}

// Store is the persistent local vector store. The mutex makes recreate
// exclusive against concurrent adds and queries; a query never observes
// a half-torn-down collection.
type Store struct {
	mu         sync.RWMutex
	log        *logger.Logger
	embedder   llm.Embedder
	path       string
	collection string
	docs       []storedDoc
	closed     bool
}

var _ vector.Store = (*Store)(nil)

// Open opens or creates the collection at path. Any failure to read the
// existing store (corruption, incompatible layout) triggers recreate:
// the directory is removed, or moved aside when it does not look like a
// store we made, and a fresh empty collection takes its place.
// Opening a healthy store repeatedly is a no-op beyond re-reading it.
func Open(log *logger.Logger, embedder llm.Embedder, path, collection string) (*Store, error) {
	s := &Store{
		log:        log.With("component", "vector.local", "path", path),
		embedder:   embedder,
		path:       path,
		collection: collection,
	}
	if err := s.open(); err != nil {
		s.log.Error("opening vector store failed; recreating", "error", err)
		if rerr := s.recreate(); rerr != nil {
			return nil, fmt.Errorf("recreate after failed open: %w", rerr)
		}
	}
	return s, nil
}

func (s *Store) open() error {
	info, err := os.Stat(s.path)
	switch {
	case os.IsNotExist(err):
		return s.initFresh()
	case err != nil:
		return fmt.Errorf("stat %s: %w", s.path, err)
	case !info.IsDir():
		return fmt.Errorf("%s exists and is not a directory", s.path)
	}

	data, err := os.ReadFile(filepath.Join(s.path, manifestFile))
	if err != nil {
		if os.IsNotExist(err) && s.dirEmpty() {
			return s.initFresh()
		}
		return fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	if m.Collection != s.collection {
		return fmt.Errorf("manifest names collection %q, want %q", m.Collection, s.collection)
	}
	return s.loadDocuments()
}

func (s *Store) dirEmpty() bool {
	entries, err := os.ReadDir(s.path)
	return err == nil && len(entries) == 0
}

func (s *Store) initFresh() error {
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	m := manifest{Collection: s.collection, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.path, manifestFile), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.path, documentsFile), nil, 0o644); err != nil {
		return fmt.Errorf("create documents file: %w", err)
	}
	s.docs = nil
	return nil
}

func (s *Store) loadDocuments() error {
	f, err := os.Open(filepath.Join(s.path, documentsFile))
	if err != nil {
		if os.IsNotExist(err) {
			s.docs = nil
			return nil
		}
		return fmt.Errorf("open documents file: %w", err)
	}
	defer f.Close()

	var docs []storedDoc
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var doc storedDoc
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			return fmt.Errorf("corrupt document record: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read documents file: %w", err)
	}
	s.docs = docs
	return nil
}

// recreate tears the storage location down and starts empty. A directory
// without our manifest is moved aside instead of deleted, in case it
// holds something that is not ours.
func (s *Store) recreate() error {
	if _, err := os.Stat(s.path); err == nil {
		if s.looksLikeStore() {
			if err := os.RemoveAll(s.path); err != nil {
				return fmt.Errorf("remove corrupt store: %w", err)
			}
			s.log.Warn("removed corrupt vector store directory")
		} else {
			backup := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
			if err := os.Rename(s.path, backup); err != nil {
				return fmt.Errorf("back up unrecognized directory: %w", err)
			}
			s.log.Warn("moved unrecognized directory aside", "backup", backup)
		}
	}
	if err := s.initFresh(); err != nil {
		return err
	}
	s.log.Info("vector store recreated", "collection", s.collection)
	return nil
}

func (s *Store) looksLikeStore() bool {
	if _, err := os.Stat(filepath.Join(s.path, manifestFile)); err == nil {
		return true
	}
	return s.dirEmpty()
}

// Add embeds and inserts one document. Invalid documents (blank text,
// missing scope metadata) are logged and skipped so blank entries never
// dilute retrieval.
func (s *Store) Add(ctx context.Context, doc models.ContextDocument) error {
	if !vector.Valid(doc) {
		s.log.Warn("skipping invalid document", "id", doc.ID)
		return nil
	}
	emb, err := s.embedder.Embed(ctx, doc.Text)
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector store is closed")
	}
	return s.persist([]storedDoc{{ID: doc.ID, Text: doc.Text, Metadata: doc.Metadata, Embedding: emb}})
}

// BatchAdd embeds and inserts many documents in one call. Entries that
// fail validation or embedding are skipped without aborting the batch.
func (s *Store) BatchAdd(ctx context.Context, docs []models.ContextDocument) error {
	if len(docs) == 0 {
		return nil
	}
	rows := make([]storedDoc, 0, len(docs))
	for _, doc := range docs {
		if !vector.Valid(doc) {
			s.log.Warn("skipping invalid document in batch", "id", doc.ID)
			continue
		}
		emb, err := s.embedder.Embed(ctx, doc.Text)
		if err != nil {
			s.log.Warn("skipping document that failed to embed", "id", doc.ID, "error", err)
			continue
		}
		rows = append(rows, storedDoc{ID: doc.ID, Text: doc.Text, Metadata: doc.Metadata, Embedding: emb})
	}
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector store is closed")
	}
	return s.persist(rows)
}

// persist appends rows to the data file and the in-memory index. Caller
// holds the write lock. A write failure is treated as corruption and
// triggers recreate; the documents from this call are lost with it.
func (s *Store) persist(rows []storedDoc) error {
	f, err := os.OpenFile(filepath.Join(s.path, documentsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return s.persistFailed(err)
	}
	w := bufio.NewWriter(f)
	for _, row := range rows {
		line, err := json.Marshal(row)
		if err != nil {
			f.Close()
			return err
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return s.persistFailed(err)
	}
	if err := f.Close(); err != nil {
		return s.persistFailed(err)
	}
	s.docs = append(s.docs, rows...)
	return nil
}

func (s *Store) persistFailed(err error) error {
	s.log.Error("persisting documents failed; recreating store", "error", err)
	if rerr := s.recreate(); rerr != nil {
		return fmt.Errorf("recreate after write failure: %w (write failure: %v)", rerr, err)
	}
	return fmt.Errorf("documents lost to store recreate: %w", err)
}

// Query returns up to q.Limit texts most similar to q.Text among the
// documents scoped to q's owner and session. A blank query or an empty
// match set yields an OK empty result; only a store that cannot answer
// at all reports unavailable.
func (s *Store) Query(ctx context.Context, q models.RetrievalQuery) models.QueryResult {
	if strings.TrimSpace(q.Text) == "" {
		return models.OKResult(nil)
	}
	if q.Limit <= 0 {
		return models.OKResult(nil)
	}

	emb, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		s.log.Warn("query embedding failed", "error", err)
		return models.Unavailable()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return models.Unavailable()
	}

	type scored struct {
		text  string
		score float64
	}
	var hits []scored
	for _, doc := range s.docs {
		if doc.Metadata[models.MetaOwnerID] != q.OwnerID ||
			doc.Metadata[models.MetaSessionID] != q.SessionID {
			continue
		}
		if len(doc.Embedding) != len(emb) {
			continue
		}
		hits = append(hits, scored{text: doc.Text, score: cosine(emb, doc.Embedding)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.text
	}
	return models.OKResult(texts)
}

// Reset deletes every document and leaves an empty, healthy collection.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector store is closed")
	}
	if err := os.WriteFile(filepath.Join(s.path, documentsFile), nil, 0o644); err != nil {
		return s.persistFailed(err)
	}
	s.docs = nil
	s.log.Info("vector collection reset", "collection", s.collection)
	return nil
}

// Close marks the store unusable. Queries against a closed store report
// unavailable rather than erroring.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.docs = nil
	return nil
}

// Len reports the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
