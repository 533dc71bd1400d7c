package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/cv-screening/internal/models"
	"alfredoptarigan/cv-screening/internal/repositories"
	"alfredoptarigan/cv-screening/internal/testutil"
)

type fakeEmbedder struct {
	calls  atomic.Int32
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type indexerFixture struct {
	docRepo       repositories.DocumentRepository
	embeddingRepo repositories.EmbeddingRepository
	embedder      *fakeEmbedder
	indexer       EmbeddingIndexer
}

func newIndexerFixture(t *testing.T, vector []float32) *indexerFixture {
	t.Helper()

	db := testutil.NewDB(t)
	docRepo := repositories.NewDocumentRepository(db)
	embeddingRepo := repositories.NewEmbeddingRepository(db)
	embedder := &fakeEmbedder{vector: vector}
	chunker, err := NewTextChunker(ChunkOptions{Size: 100, Overlap: 20, MinLength: 10})
	require.NoError(t, err)

	return &indexerFixture{
		docRepo:       docRepo,
		embeddingRepo: embeddingRepo,
		embedder:      embedder,
		indexer:       NewEmbeddingIndexer(docRepo, embeddingRepo, embedder, chunker, NewRelationalIndex(embeddingRepo), 3),
	}
}

func (f *indexerFixture) createDocument(t *testing.T, docType models.DocumentType, text *string) *models.Document {
	t.Helper()
	ctx := context.Background()

	doc := &models.Document{
		Filename: "rubric.pdf", StoredFilename: uuid.NewString() + ".pdf", ContentType: "application/pdf",
		FileSize: 10, FilePath: "/tmp/rubric.pdf", DocumentType: docType, Checksum: uuid.NewString(),
	}
	require.NoError(t, f.docRepo.Create(ctx, doc))

	var note *string
	if text == nil {
		msg := "No text content found"
		note = &msg
	}
	require.NoError(t, f.docRepo.MarkProcessed(ctx, doc.ID, text, note))
	return doc
}

func TestEmbeddingIndexer_GenerateEmbeddings(t *testing.T) {
	f := newIndexerFixture(t, []float32{0.1, 0.2, 0.3})
	ctx := context.Background()

	text := strings.Repeat("Scoring rubric criterion with detailed expectations. ", 10)
	doc := f.createDocument(t, models.DocumentTypeScoringRubric, &text)

	require.NoError(t, f.indexer.GenerateEmbeddings(ctx, doc.ID))

	count, err := f.embeddingRepo.CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Greater(t, count, int64(1))
	assert.EqualValues(t, count, f.embedder.calls.Load())

	candidates, err := f.embeddingRepo.FindCandidates(ctx, []models.DocumentType{models.DocumentTypeScoringRubric})
	require.NoError(t, err)
	require.Len(t, candidates, int(count))

	for i, c := range candidates {
		assert.Equal(t, doc.ID, c.DocumentID)
		assert.Equal(t, models.DocumentTypeScoringRubric, c.DocumentType)
		assert.NotEmpty(t, c.ContentChunk, "candidate %d", i)
		assert.Equal(t, "scoring_rubric", c.Metadata["document_type"])
		chunkSize, ok := c.Metadata["chunk_size"].(json.Number)
		require.True(t, ok, "chunk_size is %T", c.Metadata["chunk_size"])
		size, err := chunkSize.Int64()
		require.NoError(t, err)
		assert.EqualValues(t, len([]rune(c.ContentChunk)), size)
	}

	// Regenerating replaces rather than appends.
	require.NoError(t, f.indexer.GenerateEmbeddings(ctx, doc.ID))
	again, err := f.embeddingRepo.CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, count, again)
}

func TestEmbeddingIndexer_SkipsDocumentsWithoutText(t *testing.T) {
	f := newIndexerFixture(t, []float32{0.1, 0.2, 0.3})
	ctx := context.Background()

	doc := f.createDocument(t, models.DocumentTypeJobDescription, nil)

	require.NoError(t, f.indexer.GenerateEmbeddings(ctx, doc.ID))
	assert.Zero(t, f.embedder.calls.Load())

	count, err := f.embeddingRepo.CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEmbeddingIndexer_DimensionMismatchIsPermanent(t *testing.T) {
	f := newIndexerFixture(t, []float32{0.1, 0.2})
	ctx := context.Background()

	text := strings.Repeat("Case study brief for the backend role. ", 5)
	doc := f.createDocument(t, models.DocumentTypeCaseStudy, &text)

	err := f.indexer.GenerateEmbeddings(ctx, doc.ID)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	count, err := f.embeddingRepo.CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEmbeddingIndexer_EmbedderFailureIsRetryable(t *testing.T) {
	f := newIndexerFixture(t, nil)
	f.embedder.err = &LLMError{Kind: LLMErrorRateLimited, StatusCode: 429, Err: errors.New("slow down")}

	text := strings.Repeat("Job description for a platform engineer. ", 5)
	doc := f.createDocument(t, models.DocumentTypeJobDescription, &text)

	err := f.indexer.GenerateEmbeddings(context.Background(), doc.ID)
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.True(t, IsRateLimited(err))
}

func TestEmbeddingIndexer_UnknownDocument(t *testing.T) {
	f := newIndexerFixture(t, []float32{0.1, 0.2, 0.3})

	err := f.indexer.GenerateEmbeddings(context.Background(), uuid.New())
	assert.True(t, IsPermanent(err))
}
