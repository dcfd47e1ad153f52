// Package qdrant implements the vector store against a remote Qdrant
// server over gRPC. It carries the same owner/session scoping as the
// local backend via payload fields and a conjunctive keyword filter.
package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	qdrantclient "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nexora-ai/nexora-backend/pkg/llm"
	"github.com/nexora-ai/nexora-backend/pkg/logger"
	"github.com/nexora-ai/nexora-backend/pkg/models"
	"github.com/nexora-ai/nexora-backend/pkg/vector"
)

const (
	payloadText      = "text"
	payloadDocID     = "doc_id"
	payloadOwnerID   = models.MetaOwnerID
	payloadSessionID = models.MetaSessionID
	payloadKind      = models.MetaKind
)

// Config contains connection details for the Qdrant backend.
type Config struct {
	Host       string
	Port       int
	Collection string
	VectorDim  int
}

// Store is the Qdrant-backed vector store.
type Store struct {
	log         *logger.Logger
	embedder    llm.Embedder
	conn        *grpc.ClientConn
	collections qdrantclient.CollectionsClient
	points      qdrantclient.PointsClient
	collection  string
	dim         int
}

var _ vector.Store = (*Store)(nil)

// Open connects to Qdrant and ensures the collection exists with cosine
// distance. An existing collection is left untouched.
func Open(ctx context.Context, log *logger.Logger, embedder llm.Embedder, cfg Config) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s: %w", addr, err)
	}
	s := &Store{
		log:         log.With("component", "vector.qdrant", "collection", cfg.Collection),
		embedder:    embedder,
		conn:        conn,
		collections: qdrantclient.NewCollectionsClient(conn),
		points:      qdrantclient.NewPointsClient(conn),
		collection:  cfg.Collection,
		dim:         cfg.VectorDim,
	}
	if err := s.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	collections, err := s.collections.List(ctx, &qdrantclient.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, col := range collections.GetCollections() {
		if col.GetName() == s.collection {
			return nil
		}
	}
	return s.createCollection(ctx)
}

func (s *Store) createCollection(ctx context.Context) error {
	_, err := s.collections.Create(ctx, &qdrantclient.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qdrantclient.VectorsConfig{
			Config: &qdrantclient.VectorsConfig_Params{
				Params: &qdrantclient.VectorParams{
					Size:     uint64(s.dim),
					Distance: qdrantclient.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	s.log.Info("created Qdrant collection", "dim", s.dim)
	return nil
}

// Add embeds and upserts one document.
func (s *Store) Add(ctx context.Context, doc models.ContextDocument) error {
	if !vector.Valid(doc) {
		s.log.Warn("skipping invalid document", "id", doc.ID)
		return nil
	}
	return s.upsert(ctx, []models.ContextDocument{doc})
}

// BatchAdd embeds and upserts many documents, skipping invalid entries.
func (s *Store) BatchAdd(ctx context.Context, docs []models.ContextDocument) error {
	if len(docs) == 0 {
		return nil
	}
	valid := docs[:0:0]
	for _, doc := range docs {
		if !vector.Valid(doc) {
			s.log.Warn("skipping invalid document in batch", "id", doc.ID)
			continue
		}
		valid = append(valid, doc)
	}
	if len(valid) == 0 {
		return nil
	}
	return s.upsert(ctx, valid)
}

func (s *Store) upsert(ctx context.Context, docs []models.ContextDocument) error {
	points := make([]*qdrantclient.PointStruct, 0, len(docs))
	for _, doc := range docs {
		emb, err := s.embedder.Embed(ctx, doc.Text)
		if err != nil {
			s.log.Warn("skipping document that failed to embed", "id", doc.ID, "error", err)
			continue
		}
		points = append(points, &qdrantclient.PointStruct{
			Id: &qdrantclient.PointId{
				PointIdOptions: &qdrantclient.PointId_Uuid{Uuid: uuid.NewString()},
			},
			Vectors: &qdrantclient.Vectors{
				VectorsOptions: &qdrantclient.Vectors_Vector{
					Vector: &qdrantclient.Vector{Data: emb},
				},
			},
			Payload: map[string]*qdrantclient.Value{
				payloadText:      {Kind: &qdrantclient.Value_StringValue{StringValue: doc.Text}},
				payloadDocID:     {Kind: &qdrantclient.Value_StringValue{StringValue: doc.ID}},
				payloadOwnerID:   {Kind: &qdrantclient.Value_StringValue{StringValue: doc.Metadata[models.MetaOwnerID]}},
				payloadSessionID: {Kind: &qdrantclient.Value_StringValue{StringValue: doc.Metadata[models.MetaSessionID]}},
				payloadKind:      {Kind: &qdrantclient.Value_StringValue{StringValue: doc.Metadata[models.MetaKind]}},
			},
		})
	}
	if len(points) == 0 {
		return nil
	}
	_, err := s.points.Upsert(ctx, &qdrantclient.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Query searches the collection filtered to the query's owner and
// session. Any transport or search failure degrades to unavailable.
func (s *Store) Query(ctx context.Context, q models.RetrievalQuery) models.QueryResult {
	if strings.TrimSpace(q.Text) == "" || q.Limit <= 0 {
		return models.OKResult(nil)
	}
	emb, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		s.log.Warn("query embedding failed", "error", err)
		return models.Unavailable()
	}

	resp, err := s.points.Search(ctx, &qdrantclient.SearchPoints{
		CollectionName: s.collection,
		Vector:         emb,
		Limit:          uint64(q.Limit),
		Filter: &qdrantclient.Filter{
			Must: []*qdrantclient.Condition{
				keywordCondition(payloadOwnerID, q.OwnerID),
				keywordCondition(payloadSessionID, q.SessionID),
			},
		},
		WithPayload: &qdrantclient.WithPayloadSelector{
			SelectorOptions: &qdrantclient.WithPayloadSelector_Include{
				Include: &qdrantclient.PayloadIncludeSelector{
					Fields: []string{payloadText},
				},
			},
		},
	})
	if err != nil {
		s.log.Warn("qdrant search failed", "error", err)
		return models.Unavailable()
	}

	texts := make([]string, 0, len(resp.Result))
	for _, point := range resp.Result {
		if v, ok := point.Payload[payloadText]; ok {
			texts = append(texts, v.GetStringValue())
		}
	}
	return models.OKResult(texts)
}

func keywordCondition(key, value string) *qdrantclient.Condition {
	return &qdrantclient.Condition{
		ConditionOneOf: &qdrantclient.Condition_Field{
			Field: &qdrantclient.FieldCondition{
				Key: key,
				Match: &qdrantclient.Match{
					MatchValue: &qdrantclient.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// Reset drops and recreates the collection.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.collections.Delete(ctx, &qdrantclient.DeleteCollection{
		CollectionName: s.collection,
	})
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return s.createCollection(ctx)
}

// Close tears down the gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
