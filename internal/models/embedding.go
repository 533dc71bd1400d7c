package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxChunkLength bounds the stored chunk text regardless of chunker settings.
const MaxChunkLength = 8000

type VectorEmbedding struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID   uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_embeddings_document_chunk,priority:1" json:"document_id"`
	ChunkIndex   int               `gorm:"not null;uniqueIndex:idx_embeddings_document_chunk,priority:2" json:"chunk_index"`
	ContentChunk string            `gorm:"type:text;not null" json:"content_chunk"`
	Embedding    Vector            `gorm:"not null" json:"-"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (VectorEmbedding) TableName() string {
	return "vector_embeddings"
}

func (e *VectorEmbedding) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
