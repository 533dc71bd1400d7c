package services

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/cv-screening/internal/models"
	"alfredoptarigan/cv-screening/internal/repositories"
	"alfredoptarigan/cv-screening/internal/testutil"
)

type enqueued struct {
	name string
	id   uuid.UUID
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []enqueued
	err   error
}

func (q *recordingQueue) Enqueue(ctx context.Context, name string, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, enqueued{name: name, id: id})
	return nil
}

func (q *recordingQueue) recorded() []enqueued {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]enqueued(nil), q.tasks...)
}

type processorFixture struct {
	processor DocumentProcessor
	docRepo   repositories.DocumentRepository
	queue     *recordingQueue
	dir       string
}

func newProcessorFixture(t *testing.T, opts ProcessorOptions) *processorFixture {
	t.Helper()

	db := testutil.NewDB(t)
	docRepo := repositories.NewDocumentRepository(db)
	index := NewRelationalIndex(repositories.NewEmbeddingRepository(db))
	dir := t.TempDir()
	queue := &recordingQueue{}

	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = 1 << 20
	}
	if opts.ExtractionTimeout == 0 {
		opts.ExtractionTimeout = 5 * time.Second
	}

	return &processorFixture{
		processor: NewDocumentProcessor(docRepo, NewStorageService(dir), index, queue, opts),
		docRepo:   docRepo,
		queue:     queue,
		dir:       dir,
	}
}

func (f *processorFixture) storedFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func pdfInput(data []byte, docType models.DocumentType) IngestInput {
	return IngestInput{
		Data:         data,
		ContentType:  "application/pdf",
		Filename:     "resume.pdf",
		DocumentType: docType,
	}
}

func TestDocumentProcessor_Ingest(t *testing.T) {
	f := newProcessorFixture(t, ProcessorOptions{})
	ctx := context.Background()
	userID := uuid.New()

	in := pdfInput(testutil.BuildPDF("Senior backend engineer"), models.DocumentTypeCV)
	in.UserID = &userID

	doc, err := f.processor.Ingest(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, "resume.pdf", doc.Filename)
	assert.Equal(t, models.DocumentTypeCV, doc.DocumentType)
	assert.Len(t, doc.Checksum, 64)
	assert.NotEqual(t, "resume.pdf", doc.StoredFilename)
	assert.False(t, doc.Processed)

	stored, err := f.docRepo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "resume.pdf", stored.Metadata["original_filename"])
	require.NotNil(t, stored.UserID)
	assert.Equal(t, userID, *stored.UserID)

	assert.Equal(t, []string{doc.StoredFilename}, f.storedFiles(t))
}

func TestDocumentProcessor_IngestRejectsDuplicates(t *testing.T) {
	f := newProcessorFixture(t, ProcessorOptions{})
	ctx := context.Background()
	data := testutil.BuildPDF("Same content")

	_, err := f.processor.Ingest(ctx, pdfInput(data, models.DocumentTypeCV))
	require.NoError(t, err)

	_, err = f.processor.Ingest(ctx, pdfInput(data, models.DocumentTypeProjectReport))
	assert.ErrorIs(t, err, ErrDuplicateFile)
	assert.Len(t, f.storedFiles(t), 1)
}

func TestDocumentProcessor_IngestValidation(t *testing.T) {
	valid := testutil.BuildPDF("hello")

	cases := []struct {
		name   string
		mutate func(in *IngestInput)
		want   error
	}{
		{"empty file", func(in *IngestInput) { in.Data = nil }, ErrInvalidFile},
		{"too large", func(in *IngestInput) { in.Data = append([]byte("%PDF"), make([]byte, 2048)...) }, ErrFileTooLarge},
		{"wrong content type", func(in *IngestInput) { in.ContentType = "text/plain" }, ErrInvalidFile},
		{"wrong extension", func(in *IngestInput) { in.Filename = "resume.docx" }, ErrInvalidFile},
		{"missing signature", func(in *IngestInput) { in.Data = []byte("hello, this is not a pdf") }, ErrInvalidFile},
		{"corrupted", func(in *IngestInput) { in.Data = []byte("%PDF-1.4\nthis is garbage without structure") }, ErrCorruptedFile},
		{"unknown document type", func(in *IngestInput) { in.DocumentType = "resume" }, ErrInvalidArgument},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newProcessorFixture(t, ProcessorOptions{MaxFileSize: 1024})
			in := pdfInput(valid, models.DocumentTypeCV)
			tc.mutate(&in)

			_, err := f.processor.Ingest(context.Background(), in)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.storedFiles(t))
		})
	}
}

func TestDocumentProcessor_IngestAcceptsContentTypeParameters(t *testing.T) {
	f := newProcessorFixture(t, ProcessorOptions{})
	in := pdfInput(testutil.BuildPDF("hello"), models.DocumentTypeCV)
	in.ContentType = "application/pdf; charset=binary"
	in.Filename = "RESUME.PDF"

	_, err := f.processor.Ingest(context.Background(), in)
	assert.NoError(t, err)
}

func TestDocumentProcessor_ExtractText(t *testing.T) {
	f := newProcessorFixture(t, ProcessorOptions{})
	ctx := context.Background()

	doc, err := f.processor.Ingest(ctx, pdfInput(testutil.BuildPDF("Golang developer", "Five years of experience"), models.DocumentTypeCV))
	require.NoError(t, err)

	require.NoError(t, f.processor.ExtractText(ctx, doc.ID))

	stored, err := f.docRepo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Nil(t, stored.ProcessingError)
	require.True(t, stored.HasText())
	assert.Contains(t, *stored.ExtractedText, "Golang developer")
	assert.Contains(t, *stored.ExtractedText, "Five years of experience")

	assert.Equal(t, []enqueued{{name: TaskGenerateEmbeddings, id: doc.ID}}, f.queue.recorded())

	// A second run keeps the text and does not enqueue again.
	require.NoError(t, f.processor.ExtractText(ctx, doc.ID))
	assert.Len(t, f.queue.recorded(), 1)
}

func TestDocumentProcessor_ExtractTextHonoursPageLimit(t *testing.T) {
	f := newProcessorFixture(t, ProcessorOptions{MaxPages: 1})
	ctx := context.Background()

	doc, err := f.processor.Ingest(ctx, pdfInput(testutil.BuildPDF("first page", "second page"), models.DocumentTypeCV))
	require.NoError(t, err)
	require.NoError(t, f.processor.ExtractText(ctx, doc.ID))

	stored, err := f.docRepo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, stored.HasText())
	assert.Contains(t, *stored.ExtractedText, "first page")
	assert.NotContains(t, *stored.ExtractedText, "second page")
}

func TestDocumentProcessor_ExtractTextWithoutContent(t *testing.T) {
	f := newProcessorFixture(t, ProcessorOptions{})
	ctx := context.Background()

	doc, err := f.processor.Ingest(ctx, pdfInput(testutil.BuildPDF(""), models.DocumentTypeCV))
	require.NoError(t, err)
	require.NoError(t, f.processor.ExtractText(ctx, doc.ID))

	stored, err := f.docRepo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	assert.Nil(t, stored.ExtractedText)
	require.NotNil(t, stored.ProcessingError)
	assert.Equal(t, "No text content found", *stored.ProcessingError)
	assert.Empty(t, f.queue.recorded())
}

func TestDocumentProcessor_ExtractTextTooLarge(t *testing.T) {
	f := newProcessorFixture(t, ProcessorOptions{MaxTextSize: 10})
	ctx := context.Background()

	doc, err := f.processor.Ingest(ctx, pdfInput(testutil.BuildPDF(strings.Repeat("word ", 20)), models.DocumentTypeCV))
	require.NoError(t, err)
	require.NoError(t, f.processor.ExtractText(ctx, doc.ID))

	stored, err := f.docRepo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ExtractedText)
	require.NotNil(t, stored.ProcessingError)
	assert.Equal(t, "Extracted text too large", *stored.ProcessingError)
}

func TestDocumentProcessor_ExtractTextMissingFile(t *testing.T) {
	f := newProcessorFixture(t, ProcessorOptions{})
	ctx := context.Background()

	doc, err := f.processor.Ingest(ctx, pdfInput(testutil.BuildPDF("content"), models.DocumentTypeCV))
	require.NoError(t, err)
	require.NoError(t, os.Remove(doc.FilePath))

	err = f.processor.ExtractText(ctx, doc.ID)
	require.Error(t, err)
	assert.False(t, IsPermanent(err))

	stored, err := f.docRepo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	require.NotNil(t, stored.ProcessingError)
	assert.True(t, strings.HasPrefix(*stored.ProcessingError, "Extraction error:"))
}

func TestDocumentProcessor_ExtractTextCorruptedFile(t *testing.T) {
	f := newProcessorFixture(t, ProcessorOptions{})
	ctx := context.Background()

	doc, err := f.processor.Ingest(ctx, pdfInput(testutil.BuildPDF("content"), models.DocumentTypeCV))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(doc.FilePath, []byte("%PDF-1.4\nthis is garbage without structure"), 0o644))

	err = f.processor.ExtractText(ctx, doc.ID)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, ErrCorruptedFile)

	stored, err := f.docRepo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	assert.Nil(t, stored.ExtractedText)
	require.NotNil(t, stored.ProcessingError)
	assert.True(t, strings.HasPrefix(*stored.ProcessingError, "Extraction error:"))
	assert.Empty(t, f.queue.recorded())
}

func TestDocumentProcessor_ExtractTextTimeout(t *testing.T) {
	f := newProcessorFixture(t, ProcessorOptions{ExtractionTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	doc, err := f.processor.Ingest(ctx, pdfInput(testutil.BuildPDF("slow content"), models.DocumentTypeCV))
	require.NoError(t, err)

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	f.processor.(*documentProcessor).read = func(string) (string, error) {
		<-release
		return "too late", nil
	}

	start := time.Now()
	err = f.processor.ExtractText(ctx, doc.ID)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsPermanent(err))

	stored, err := f.docRepo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	assert.Nil(t, stored.ExtractedText)
	require.NotNil(t, stored.ProcessingError)
	assert.Equal(t, "Text extraction timeout", *stored.ProcessingError)
	assert.Empty(t, f.queue.recorded())
}

func TestDocumentProcessor_ExtractTextUnknownDocument(t *testing.T) {
	f := newProcessorFixture(t, ProcessorOptions{})

	err := f.processor.ExtractText(context.Background(), uuid.New())
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestDocumentProcessor_Discard(t *testing.T) {
	f := newProcessorFixture(t, ProcessorOptions{})
	ctx := context.Background()

	doc, err := f.processor.Ingest(ctx, pdfInput(testutil.BuildPDF("discard me"), models.DocumentTypeCV))
	require.NoError(t, err)

	require.NoError(t, f.processor.Discard(ctx, doc.ID))

	_, err = f.docRepo.FindByID(ctx, doc.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.Empty(t, f.storedFiles(t))
}
