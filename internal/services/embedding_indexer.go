package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"alfredoptarigan/cv-screening/internal/models"
	"alfredoptarigan/cv-screening/internal/repositories"
)

type EmbeddingIndexer interface {
	GenerateEmbeddings(ctx context.Context, documentID uuid.UUID) error
}

type embeddingIndexer struct {
	docRepo       repositories.DocumentRepository
	embeddingRepo repositories.EmbeddingRepository
	embedder      Embedder
	chunker       TextChunker
	index         SimilarityIndex
	dimension     int
}

func NewEmbeddingIndexer(
	docRepo repositories.DocumentRepository,
	embeddingRepo repositories.EmbeddingRepository,
	embedder Embedder,
	chunker TextChunker,
	index SimilarityIndex,
	dimension int,
) EmbeddingIndexer {
	return &embeddingIndexer{
		docRepo:       docRepo,
		embeddingRepo: embeddingRepo,
		embedder:      embedder,
		chunker:       chunker,
		index:         index,
		dimension:     dimension,
	}
}

// GenerateEmbeddings chunks the document's extracted text, embeds every chunk
// and replaces the document's stored embeddings. Documents without text are
// skipped.
func (e *embeddingIndexer) GenerateEmbeddings(ctx context.Context, documentID uuid.UUID) error {
	doc, err := e.docRepo.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Permanent(err)
		}
		return err
	}

	log := logrus.WithFields(logrus.Fields{"document_id": doc.ID, "type": doc.DocumentType})

	if !doc.Processed || !doc.HasText() {
		log.Debug("Document has no extracted text, skipping embeddings")
		return nil
	}

	chunks := e.chunker.Chunk(*doc.ExtractedText)
	log.Infof("🧠 Generating embeddings for %d chunks", len(chunks))

	embeddings := make([]models.VectorEmbedding, 0, len(chunks))
	for i, chunk := range chunks {
		if runes := []rune(chunk); len(runes) > models.MaxChunkLength {
			chunk = string(runes[:models.MaxChunkLength])
		}

		vector, err := e.embedder.Embed(ctx, chunk)
		if err != nil {
			return fmt.Errorf("failed to embed chunk %d: %w", i, err)
		}
		if e.dimension > 0 && len(vector) != e.dimension {
			return Permanent(fmt.Errorf("%w: chunk %d embedding has %d dimensions, expected %d",
				ErrInvalidArgument, i, len(vector), e.dimension))
		}

		embeddings = append(embeddings, models.VectorEmbedding{
			ID:           uuid.New(),
			DocumentID:   doc.ID,
			ChunkIndex:   i,
			ContentChunk: chunk,
			Embedding:    models.NewVector(vector),
			Metadata: datatypes.JSONMap{
				"chunk_size":    len([]rune(chunk)),
				"document_type": string(doc.DocumentType),
			},
		})
	}

	if err := e.embeddingRepo.ReplaceForDocument(ctx, doc.ID, embeddings); err != nil {
		return err
	}

	if e.index != nil {
		if err := e.index.Index(ctx, doc, embeddings); err != nil {
			return fmt.Errorf("failed to index embeddings: %w", err)
		}
	}

	log.Infof("✅ Embedding generation completed, %d embeddings stored", len(embeddings))
	return nil
}
