package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-screening/internal/models"
)

// QdrantIndex mirrors stored embeddings into a Qdrant collection and serves
// searches from it.
type QdrantIndex interface {
	SimilarityIndex
	InitCollection(ctx context.Context) error
	Close() error
}

type qdrantIndex struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     uint64
}

func NewQdrantIndex(urlStr, apiKey, collectionName string, vectorSize int) (QdrantIndex, error) {
	if collectionName == "" {
		return nil, fmt.Errorf("%w: qdrant collection name is required", ErrInvalidArgument)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("%w: qdrant vector size must be positive", ErrInvalidArgument)
	}

	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Hostname() == "" {
		return nil, fmt.Errorf("%w: invalid Qdrant URL %q", ErrInvalidArgument, urlStr)
	}

	// gRPC port unless the URL names one.
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   parsed.Hostname(),
		Port:   port,
		APIKey: apiKey,
		UseTLS: parsed.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &qdrantIndex{
		client:         client,
		collectionName: collectionName,
		vectorSize:     uint64(vectorSize),
	}, nil
}

func (q *qdrantIndex) InitCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if exists {
		logrus.WithField("collection", q.collectionName).Info("✅ Qdrant collection already exists")
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	logrus.WithField("collection", q.collectionName).Info("✅ Qdrant collection created")
	return nil
}

// Index replaces the document's points with one point per embedding.
func (q *qdrantIndex) Index(ctx context.Context, doc *models.Document, embeddings []models.VectorEmbedding) error {
	if err := q.DeleteDocument(ctx, doc.ID); err != nil {
		return err
	}
	if len(embeddings) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(embeddings))
	for _, e := range embeddings {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(e.ID.String()),
			Vectors: qdrant.NewVectors(e.Embedding.Slice()...),
			Payload: qdrant.NewValueMap(map[string]any{
				"doc_id":      doc.ID.String(),
				"doc_type":    string(doc.DocumentType),
				"chunk_index": e.ChunkIndex,
				"text":        e.ContentChunk,
			}),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

func (q *qdrantIndex) Search(ctx context.Context, query []float32, topK int, docTypes ...models.DocumentType) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidArgument, topK)
	}
	if err := validateDocTypes(docTypes); err != nil {
		return nil, err
	}

	var filter *qdrant.Filter
	if len(docTypes) > 0 {
		keywords := make([]string, len(docTypes))
		for i, t := range docTypes {
			keywords[i] = string(t)
		}
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeywords("doc_type", keywords...),
			},
		}
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuery(query...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		payload := point.GetPayload()

		result := SearchResult{
			DocumentType: models.DocumentType(payload["doc_type"].GetStringValue()),
			ChunkIndex:   int(payload["chunk_index"].GetIntegerValue()),
			Text:         payload["text"].GetStringValue(),
			Score:        float64(point.GetScore()),
		}
		if id, err := uuid.Parse(point.GetId().GetUuid()); err == nil {
			result.EmbeddingID = id
		}
		if docID, err := uuid.Parse(payload["doc_id"].GetStringValue()); err == nil {
			result.DocumentID = docID
		}

		results = append(results, result)
	}

	return results, nil
}

func (q *qdrantIndex) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("doc_id", documentID.String()),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete document points: %w", err)
	}

	return nil
}

func (q *qdrantIndex) Close() error {
	return q.client.Close()
}
