package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DocumentType string

const (
	DocumentTypeCV             DocumentType = "cv"
	DocumentTypeProjectReport  DocumentType = "project_report"
	DocumentTypeJobDescription DocumentType = "job_description"
	DocumentTypeCaseStudy      DocumentType = "case_study"
	DocumentTypeScoringRubric  DocumentType = "scoring_rubric"
)

var documentTypes = []DocumentType{
	DocumentTypeCV,
	DocumentTypeProjectReport,
	DocumentTypeJobDescription,
	DocumentTypeCaseStudy,
	DocumentTypeScoringRubric,
}

func (t DocumentType) Valid() bool {
	for _, known := range documentTypes {
		if t == known {
			return true
		}
	}
	return false
}

func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown document type %q", ErrValidation, s)
	}
	return t, nil
}

// Document is an uploaded PDF. ExtractedText stays nil when extraction failed
// or found nothing; ProcessingError then says why.
type Document struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Filename        string            `gorm:"type:text;not null" json:"filename"`
	StoredFilename  string            `gorm:"type:text;not null" json:"-"`
	ContentType     string            `gorm:"type:text;not null" json:"content_type"`
	FileSize        int64             `gorm:"not null" json:"file_size"`
	FilePath        string            `gorm:"type:text;not null" json:"-"`
	DocumentType    DocumentType      `gorm:"type:text;not null;index" json:"document_type"`
	ExtractedText   *string           `gorm:"type:text" json:"-"`
	Checksum        string            `gorm:"type:text;not null;uniqueIndex" json:"checksum"`
	Processed       bool              `gorm:"not null;default:false;index" json:"processed"`
	ProcessedAt     *time.Time        `json:"processed_at,omitempty"`
	ProcessingError *string           `gorm:"type:text" json:"processing_error,omitempty"`
	UserID          *uuid.UUID        `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`

	Embeddings []VectorEmbedding `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Document) TableName() string {
	return "documents"
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// HasText reports whether extraction produced usable text.
func (d *Document) HasText() bool {
	return d.ExtractedText != nil && strings.TrimSpace(*d.ExtractedText) != ""
}
