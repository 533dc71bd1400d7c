package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/cv-screening/internal/models"
)

type DocumentRepository interface {
	Create(ctx context.Context, document *models.Document) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Document, error)
	FindByChecksum(ctx context.Context, checksum string) (*models.Document, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, extractedText, processingError *string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type documentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create implements DocumentRepository.
func (d *documentRepository) Create(ctx context.Context, document *models.Document) error {
	if err := d.db.WithContext(ctx).Create(document).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("failed to create document: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to create document: %w", err)
	}

	return nil
}

// FindByID implements DocumentRepository.
func (d *documentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}

		return nil, fmt.Errorf("failed to find document: %w", err)
	}

	return &doc, nil
}

// FindByIDs implements DocumentRepository.
func (d *documentRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Document, error) {
	var docs []models.Document
	if len(ids) == 0 {
		return docs, nil
	}
	if err := d.db.WithContext(ctx).Where("id IN ?", ids).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to find documents: %w", err)
	}

	return docs, nil
}

// FindByChecksum implements DocumentRepository.
func (d *documentRepository) FindByChecksum(ctx context.Context, checksum string) (*models.Document, error) {
	var doc models.Document
	if err := d.db.WithContext(ctx).Where("checksum = ?", checksum).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("document with checksum %s: %w", checksum, ErrNotFound)
		}

		return nil, fmt.Errorf("failed to find document by checksum: %w", err)
	}

	return &doc, nil
}

// MarkProcessed records the terminal state of an extraction attempt.
func (d *documentRepository) MarkProcessed(ctx context.Context, id uuid.UUID, extractedText, processingError *string) error {
	now := time.Now()
	result := d.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":        true,
			"processed_at":     now,
			"extracted_text":   extractedText,
			"processing_error": processingError,
			"updated_at":       now,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to mark document processed: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}

	return nil
}

// Delete removes the document and its embeddings.
func (d *documentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.VectorEmbedding{}).Error; err != nil {
			return fmt.Errorf("failed to delete embeddings: %w", err)
		}

		result := tx.Where("id = ?", id).Delete(&models.Document{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete document: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("document %s: %w", id, ErrNotFound)
		}

		return nil
	})
}
