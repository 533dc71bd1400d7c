package services

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-screening/internal/models"
	"alfredoptarigan/cv-screening/internal/repositories"
)

type SearchResult struct {
	EmbeddingID  uuid.UUID
	DocumentID   uuid.UUID
	DocumentType models.DocumentType
	ChunkIndex   int
	Text         string
	Score        float64
}

// SimilarityIndex answers nearest-chunk queries over stored embeddings.
type SimilarityIndex interface {
	Search(ctx context.Context, query []float32, topK int, docTypes ...models.DocumentType) ([]SearchResult, error)
	Index(ctx context.Context, doc *models.Document, embeddings []models.VectorEmbedding) error
	DeleteDocument(ctx context.Context, documentID uuid.UUID) error
}

// CosineSimilarity returns dot(a,b)/(|a||b|). Mismatched, empty or zero-length
// vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func validateDocTypes(docTypes []models.DocumentType) error {
	for _, t := range docTypes {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown document type %q", ErrInvalidArgument, t)
		}
	}
	return nil
}

// relationalIndex scores every candidate row in process. Rows live in the
// relational store, so Index and DeleteDocument have nothing extra to do.
type relationalIndex struct {
	repo repositories.EmbeddingRepository
}

func NewRelationalIndex(repo repositories.EmbeddingRepository) SimilarityIndex {
	return &relationalIndex{repo: repo}
}

func (r *relationalIndex) Search(ctx context.Context, query []float32, topK int, docTypes ...models.DocumentType) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidArgument, topK)
	}
	if err := validateDocTypes(docTypes); err != nil {
		return nil, err
	}

	candidates, err := r.repo.FindCandidates(ctx, docTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar chunks: %w", err)
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, SearchResult{
			EmbeddingID:  c.ID,
			DocumentID:   c.DocumentID,
			DocumentType: c.DocumentType,
			ChunkIndex:   c.ChunkIndex,
			Text:         c.ContentChunk,
			Score:        CosineSimilarity(query, c.Embedding.Slice()),
		})
	}

	slices.SortStableFunc(results, func(a, b SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if len(results) > topK {
		results = results[:topK]
	}

	logrus.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"returned":   len(results),
		"doc_types":  docTypes,
	}).Debug("🔍 Similarity search finished")

	return results, nil
}

func (r *relationalIndex) Index(ctx context.Context, doc *models.Document, embeddings []models.VectorEmbedding) error {
	return nil
}

func (r *relationalIndex) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	return nil
}
