package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nexora-ai/nexora-backend/pkg/logger"
	"github.com/nexora-ai/nexora-backend/pkg/models"
)

// fakeEmbedder returns the vector registered for a text, or a unit
// vector orthogonal to everything registered.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0, 1}, nil
}

func chatDoc(id, owner, session, text string) models.ContextDocument {
	return models.ContextDocument{
		ID:   id,
		Text: text,
		Metadata: map[string]string{
			models.MetaOwnerID:   owner,
			models.MetaSessionID: session,
			models.MetaKind:      models.KindChat,
		},
	}
}

func openTestStore(t *testing.T, emb *fakeEmbedder) (*Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "chroma_db")
	s, err := Open(logger.NewNop(), emb, dir, "chat_history")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, dir
}

func TestQueryScopedToOwnerAndSession(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"hello":         {1, 0, 0, 0},
		"mine":          {1, 0, 0, 0},
		"other owner":   {1, 0, 0, 0},
		"other session": {1, 0, 0, 0},
	}}
	s, _ := openTestStore(t, emb)
	defer s.Close()

	ctx := context.Background()
	docs := []models.ContextDocument{
		chatDoc("a", "1", "10", "mine"),
		chatDoc("b", "2", "10", "other owner"),
		chatDoc("c", "1", "11", "other session"),
	}
	if err := s.BatchAdd(ctx, docs); err != nil {
		t.Fatalf("BatchAdd: %v", err)
	}

	res := s.Query(ctx, models.RetrievalQuery{OwnerID: "1", SessionID: "10", Text: "hello", Limit: 5})
	if res.Status != models.StatusOK {
		t.Fatalf("status = %v, want ok", res.Status)
	}
	if len(res.Documents) != 1 || res.Documents[0] != "mine" {
		t.Fatalf("documents = %v, want [mine]", res.Documents)
	}
}

func TestQueryOrdersBySimilarityAndHonorsLimit(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"query":  {1, 0, 0, 0},
		"close":  {1, 0.1, 0, 0},
		"closer": {1, 0.01, 0, 0},
		"far":    {0, 1, 0, 0},
	}}
	s, _ := openTestStore(t, emb)
	defer s.Close()

	ctx := context.Background()
	for i, text := range []string{"far", "close", "closer"} {
		if err := s.Add(ctx, chatDoc(fmt.Sprintf("d%d", i), "1", "1", text)); err != nil {
			t.Fatalf("Add %q: %v", text, err)
		}
	}

	res := s.Query(ctx, models.RetrievalQuery{OwnerID: "1", SessionID: "1", Text: "query", Limit: 2})
	if res.Status != models.StatusOK {
		t.Fatalf("status = %v, want ok", res.Status)
	}
	want := []string{"closer", "close"}
	if len(res.Documents) != len(want) {
		t.Fatalf("got %d documents, want %d", len(res.Documents), len(want))
	}
	for i := range want {
		if res.Documents[i] != want[i] {
			t.Fatalf("documents = %v, want %v", res.Documents, want)
		}
	}
}

func TestQueryBlankTextOrZeroLimit(t *testing.T) {
	s, _ := openTestStore(t, &fakeEmbedder{})
	defer s.Close()

	ctx := context.Background()
	for _, q := range []models.RetrievalQuery{
		{OwnerID: "1", SessionID: "1", Text: "   ", Limit: 5},
		{OwnerID: "1", SessionID: "1", Text: "hello", Limit: 0},
	} {
		res := s.Query(ctx, q)
		if res.Status != models.StatusOK || len(res.Documents) != 0 {
			t.Fatalf("query %+v: got %+v, want empty ok result", q, res)
		}
	}
}

func TestQueryUnavailableWhenEmbedderFails(t *testing.T) {
	emb := &fakeEmbedder{}
	s, _ := openTestStore(t, emb)
	defer s.Close()

	emb.err = fmt.Errorf("connection refused")
	res := s.Query(context.Background(), models.RetrievalQuery{OwnerID: "1", SessionID: "1", Text: "hello", Limit: 5})
	if res.Status != models.StatusUnavailable {
		t.Fatalf("status = %v, want unavailable", res.Status)
	}
}

func TestQueryUnavailableAfterClose(t *testing.T) {
	s, _ := openTestStore(t, &fakeEmbedder{})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	res := s.Query(context.Background(), models.RetrievalQuery{OwnerID: "1", SessionID: "1", Text: "hello", Limit: 5})
	if res.Status != models.StatusUnavailable {
		t.Fatalf("status = %v, want unavailable", res.Status)
	}
}

func TestBatchAddSkipsInvalidEntries(t *testing.T) {
	s, _ := openTestStore(t, &fakeEmbedder{})
	defer s.Close()

	ctx := context.Background()
	docs := []models.ContextDocument{
		chatDoc("ok", "1", "1", "valid text"),
		chatDoc("blank", "1", "1", "   "),
		{ID: "no-meta", Text: "text without scope", Metadata: map[string]string{}},
	}
	if err := s.BatchAdd(ctx, docs); err != nil {
		t.Fatalf("BatchAdd: %v", err)
	}
	if got := s.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
}

func TestBatchAddSkipsEmbedFailuresIndividually(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"good": {1, 0, 0, 0}}}
	s, _ := openTestStore(t, emb)
	defer s.Close()

	ctx := context.Background()
	if err := s.BatchAdd(ctx, []models.ContextDocument{chatDoc("a", "1", "1", "good")}); err != nil {
		t.Fatalf("BatchAdd: %v", err)
	}

	emb.err = fmt.Errorf("embedder down")
	if err := s.BatchAdd(ctx, []models.ContextDocument{chatDoc("b", "1", "1", "bad")}); err != nil {
		t.Fatalf("BatchAdd with failing embedder: %v", err)
	}
	if got := s.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
}

func TestAddSkipsInvalidDocument(t *testing.T) {
	s, _ := openTestStore(t, &fakeEmbedder{})
	defer s.Close()

	if err := s.Add(context.Background(), chatDoc("blank", "1", "1", "")); err != nil {
		t.Fatalf("Add invalid: %v", err)
	}
	if got := s.Len(); got != 0 {
		t.Fatalf("Len = %d, want 0", got)
	}
}

func TestOpenSurvivesCorruptDocumentsFile(t *testing.T) {
	emb := &fakeEmbedder{}
	s, dir := openTestStore(t, emb)
	ctx := context.Background()
	if err := s.Add(ctx, chatDoc("a", "1", "1", "hello")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Close()

	if err := os.WriteFile(filepath.Join(dir, "documents.ndjson"), []byte("{not json\n"), 0o644); err != nil {
		t.Fatalf("corrupting file: %v", err)
	}

	reopened, err := Open(logger.NewNop(), emb, dir, "chat_history")
	if err != nil {
		t.Fatalf("Open after corruption: %v", err)
	}
	defer reopened.Close()

	if got := reopened.Len(); got != 0 {
		t.Fatalf("Len = %d, want 0 after recreate", got)
	}
	if err := reopened.Add(ctx, chatDoc("b", "1", "1", "after recovery")); err != nil {
		t.Fatalf("Add after recreate: %v", err)
	}
	res := reopened.Query(ctx, models.RetrievalQuery{OwnerID: "1", SessionID: "1", Text: "anything", Limit: 5})
	if res.Status != models.StatusOK || len(res.Documents) != 1 {
		t.Fatalf("query after recreate = %+v, want one document", res)
	}
}

func TestOpenRecreatesOnCollectionMismatch(t *testing.T) {
	emb := &fakeEmbedder{}
	dir := filepath.Join(t.TempDir(), "chroma_db")
	s, err := Open(logger.NewNop(), emb, dir, "old_collection")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Add(context.Background(), chatDoc("a", "1", "1", "hello")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Close()

	reopened, err := Open(logger.NewNop(), emb, dir, "chat_history")
	if err != nil {
		t.Fatalf("Open with new collection: %v", err)
	}
	defer reopened.Close()
	if got := reopened.Len(); got != 0 {
		t.Fatalf("Len = %d, want 0 after recreate", got)
	}
}

func TestOpenMovesUnrecognizedDirectoryAside(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chroma_db")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a store"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	s, err := Open(logger.NewNop(), &fakeEmbedder{}, dir, "chat_history")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	matches, err := filepath.Glob(dir + ".corrupt-*")
	if err != nil || len(matches) != 1 {
		t.Fatalf("backup directory not found: matches=%v err=%v", matches, err)
	}
	if _, err := os.Stat(filepath.Join(matches[0], "notes.txt")); err != nil {
		t.Fatalf("seed file missing from backup: %v", err)
	}
}

func TestResetEmptiesCollectionAndPersists(t *testing.T) {
	emb := &fakeEmbedder{}
	s, dir := openTestStore(t, emb)
	ctx := context.Background()
	if err := s.Add(ctx, chatDoc("a", "1", "1", "hello")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := s.Len(); got != 0 {
		t.Fatalf("Len = %d, want 0", got)
	}
	s.Close()

	reopened, err := Open(logger.NewNop(), emb, dir, "chat_history")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if got := reopened.Len(); got != 0 {
		t.Fatalf("Len after reopen = %d, want 0", got)
	}
}

func TestRecreateExclusiveWithConcurrentOps(t *testing.T) {
	emb := &fakeEmbedder{}
	s, dir := openTestStore(t, emb)
	defer s.Close()

	ctx := context.Background()
	if err := s.Add(ctx, chatDoc("seed", "1", "1", "seed text")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Replace the data file with a directory so the next persist fails
	// and forces a recreate under concurrent load.
	docPath := filepath.Join(dir, "documents.ndjson")
	if err := os.Remove(docPath); err != nil {
		t.Fatalf("removing data file: %v", err)
	}
	if err := os.Mkdir(docPath, 0o755); err != nil {
		t.Fatalf("blocking data file: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			// The writer that hits the blocked file loses its documents
			// to the recreate and reports that; later writers succeed.
			_ = s.Add(ctx, chatDoc(fmt.Sprintf("c%d", i), "1", "1", "concurrent text"))
		}(i)
		go func() {
			defer wg.Done()
			res := s.Query(ctx, models.RetrievalQuery{OwnerID: "1", SessionID: "1", Text: "hello", Limit: 5})
			if res.Status != models.StatusOK {
				t.Errorf("query during recreate reported %v", res.Status)
			}
		}()
	}
	wg.Wait()

	// The store is healthy afterwards: adds persist and queries answer.
	if err := s.Add(ctx, chatDoc("after", "1", "1", "after recovery")); err != nil {
		t.Fatalf("Add after recreate: %v", err)
	}
	res := s.Query(ctx, models.RetrievalQuery{OwnerID: "1", SessionID: "1", Text: "hello", Limit: 50})
	if res.Status != models.StatusOK || len(res.Documents) == 0 {
		t.Fatalf("query after recreate = %+v, want documents", res)
	}
	if got := s.Len(); got != len(res.Documents) {
		t.Fatalf("Len = %d, query saw %d", got, len(res.Documents))
	}
}

func TestDocumentsSurviveReopen(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"hello": {1, 0, 0, 0}}}
	s, dir := openTestStore(t, emb)
	ctx := context.Background()
	if err := s.Add(ctx, chatDoc("a", "1", "1", "hello")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Close()

	reopened, err := Open(logger.NewNop(), emb, dir, "chat_history")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	res := reopened.Query(ctx, models.RetrievalQuery{OwnerID: "1", SessionID: "1", Text: "hello", Limit: 5})
	if res.Status != models.StatusOK || len(res.Documents) != 1 || res.Documents[0] != "hello" {
		t.Fatalf("query after reopen = %+v, want [hello]", res)
	}
}
