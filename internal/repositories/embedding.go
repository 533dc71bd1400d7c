package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/cv-screening/internal/models"
)

const embeddingBatchSize = 100

// EmbeddingCandidate is an embedding row joined with the type of its document.
type EmbeddingCandidate struct {
	models.VectorEmbedding
	DocumentType models.DocumentType
}

type EmbeddingRepository interface {
	ReplaceForDocument(ctx context.Context, documentID uuid.UUID, embeddings []models.VectorEmbedding) error
	FindCandidates(ctx context.Context, docTypes []models.DocumentType) ([]EmbeddingCandidate, error)
	CountByDocument(ctx context.Context, documentID uuid.UUID) (int64, error)
}

type embeddingRepository struct {
	db *gorm.DB
}

func NewEmbeddingRepository(db *gorm.DB) EmbeddingRepository {
	return &embeddingRepository{db: db}
}

// ReplaceForDocument swaps the document's embeddings in one transaction, so a
// re-delivered embedding task never leaves a mix of old and new chunks.
func (r *embeddingRepository) ReplaceForDocument(ctx context.Context, documentID uuid.UUID, embeddings []models.VectorEmbedding) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&models.VectorEmbedding{}).Error; err != nil {
			return fmt.Errorf("failed to delete old embeddings: %w", err)
		}

		if len(embeddings) == 0 {
			return nil
		}

		if err := tx.CreateInBatches(&embeddings, embeddingBatchSize).Error; err != nil {
			return fmt.Errorf("failed to create embeddings: %w", err)
		}

		return nil
	})
}

// FindCandidates loads every embedding whose document has one of docTypes,
// together with that type, in a single query. An empty filter loads all.
func (r *embeddingRepository) FindCandidates(ctx context.Context, docTypes []models.DocumentType) ([]EmbeddingCandidate, error) {
	query := r.db.WithContext(ctx).
		Model(&models.VectorEmbedding{}).
		Select("vector_embeddings.*, documents.document_type AS document_type").
		Joins("JOIN documents ON documents.id = vector_embeddings.document_id").
		Order("vector_embeddings.document_id, vector_embeddings.chunk_index")

	if len(docTypes) > 0 {
		query = query.Where("documents.document_type IN ?", docTypes)
	}

	var candidates []EmbeddingCandidate
	if err := query.Scan(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to load embedding candidates: %w", err)
	}

	return candidates, nil
}

func (r *embeddingRepository) CountByDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.VectorEmbedding{}).Where("document_id = ?", documentID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return count, nil
}
