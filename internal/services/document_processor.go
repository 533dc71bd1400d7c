package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"alfredoptarigan/cv-screening/internal/models"
	"alfredoptarigan/cv-screening/internal/repositories"
)

const (
	pdfContentType = "application/pdf"
	pdfExtension   = ".pdf"
)

var pdfMagic = []byte("%PDF")

const (
	msgNoText         = "No text content found"
	msgTextTooLarge   = "Extracted text too large"
	msgExtractTimeout = "Text extraction timeout"
)

type IngestInput struct {
	Data         []byte
	ContentType  string
	Filename     string
	DocumentType models.DocumentType
	UserID       *uuid.UUID
}

type ProcessorOptions struct {
	MaxFileSize       int64
	ExtractionTimeout time.Duration
	MaxPages          int
	MaxTextSize       int
}

type DocumentProcessor interface {
	Ingest(ctx context.Context, in IngestInput) (*models.Document, error)
	ExtractText(ctx context.Context, documentID uuid.UUID) error
	Discard(ctx context.Context, documentID uuid.UUID) error
}

type documentProcessor struct {
	docRepo repositories.DocumentRepository
	storage StorageService
	index   SimilarityIndex
	queue   TaskEnqueuer
	opts    ProcessorOptions

	// read extracts the text of a stored file.
	read func(filePath string) (string, error)
}

func NewDocumentProcessor(
	docRepo repositories.DocumentRepository,
	storage StorageService,
	index SimilarityIndex,
	queue TaskEnqueuer,
	opts ProcessorOptions,
) DocumentProcessor {
	p := &documentProcessor{
		docRepo: docRepo,
		storage: storage,
		index:   index,
		queue:   queue,
		opts:    opts,
	}
	p.read = p.readPages
	return p
}

// Ingest validates an uploaded PDF, stores it and records an unprocessed
// Document. Nothing is left on disk when it fails.
func (p *documentProcessor) Ingest(ctx context.Context, in IngestInput) (*models.Document, error) {
	if !in.DocumentType.Valid() {
		return nil, fmt.Errorf("%w: unknown document type %q", ErrInvalidArgument, in.DocumentType)
	}
	if err := p.validate(in); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(in.Data)
	checksum := hex.EncodeToString(sum[:])

	if existing, err := p.docRepo.FindByChecksum(ctx, checksum); err == nil {
		return nil, fmt.Errorf("%w: identical content already uploaded as document %s", ErrDuplicateFile, existing.ID)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	storedFilename, filePath, err := p.storage.SaveBytes(in.Data, pdfExtension)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:             uuid.New(),
		Filename:       filepath.Base(in.Filename),
		StoredFilename: storedFilename,
		ContentType:    pdfContentType,
		FileSize:       int64(len(in.Data)),
		FilePath:       filePath,
		DocumentType:   in.DocumentType,
		Checksum:       checksum,
		UserID:         in.UserID,
		Metadata:       datatypes.JSONMap{"original_filename": in.Filename},
	}

	if err := p.docRepo.Create(ctx, doc); err != nil {
		p.removeFile(filePath)
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, fmt.Errorf("%w: identical content already uploaded", ErrDuplicateFile)
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"type":        doc.DocumentType,
		"size":        doc.FileSize,
	}).Info("📄 Document stored")

	return doc, nil
}

func (p *documentProcessor) validate(in IngestInput) error {
	if len(in.Data) == 0 {
		return fmt.Errorf("%w: file is empty", ErrInvalidFile)
	}
	if p.opts.MaxFileSize > 0 && int64(len(in.Data)) > p.opts.MaxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrFileTooLarge, len(in.Data), p.opts.MaxFileSize)
	}

	mediaType, _, err := mime.ParseMediaType(in.ContentType)
	if err != nil || mediaType != pdfContentType {
		return fmt.Errorf("%w: content type must be %s, got %q", ErrInvalidFile, pdfContentType, in.ContentType)
	}
	if ext := strings.ToLower(filepath.Ext(in.Filename)); ext != pdfExtension {
		return fmt.Errorf("%w: invalid file extension %q", ErrInvalidFile, ext)
	}

	if !bytes.HasPrefix(in.Data, pdfMagic) {
		return fmt.Errorf("%w: file does not start with a PDF signature", ErrInvalidFile)
	}

	if _, err := openPDF(in.Data); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptedFile, err)
	}

	return nil
}

// openPDF parses the PDF structure. The parser panics on some malformed
// input, so panics are turned into errors.
func openPDF(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader = nil
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// ExtractText reads the stored PDF and records the outcome on the document.
// Empty and oversized text are recorded without an error. Timeouts and parser
// failures are recorded and returned.
func (p *documentProcessor) ExtractText(ctx context.Context, documentID uuid.UUID) error {
	doc, err := p.docRepo.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Permanent(err)
		}
		return err
	}

	log := logrus.WithFields(logrus.Fields{"document_id": doc.ID, "filename": doc.Filename})

	if doc.Processed && doc.HasText() {
		log.Debug("Document already extracted, skipping")
		return nil
	}
	if doc.ContentType != pdfContentType {
		return Permanent(fmt.Errorf("%w: document %s is not a PDF", ErrInvalidFile, doc.ID))
	}

	log.Info("🔍 Starting text extraction")

	text, err := p.extractWithTimeout(ctx, doc.FilePath)
	if err != nil {
		note := fmt.Sprintf("Extraction error: %v", err)
		if errors.Is(err, context.DeadlineExceeded) {
			note = msgExtractTimeout
		}
		log.WithError(err).Error("❌ Text extraction failed")
		if markErr := p.docRepo.MarkProcessed(ctx, doc.ID, nil, &note); markErr != nil {
			log.WithError(markErr).Error("❌ Failed to record extraction failure")
		}
		err = fmt.Errorf("failed to extract text from document %s: %w", doc.ID, err)
		if errors.Is(err, ErrCorruptedFile) {
			return Permanent(err)
		}
		return err
	}

	if strings.TrimSpace(text) == "" {
		note := msgNoText
		log.Warn("⚠️  No text content found")
		return p.docRepo.MarkProcessed(ctx, doc.ID, nil, &note)
	}

	if p.opts.MaxTextSize > 0 && len(text) > p.opts.MaxTextSize {
		note := msgTextTooLarge
		log.WithField("bytes", len(text)).Warn("⚠️  Extracted text too large, discarding")
		return p.docRepo.MarkProcessed(ctx, doc.ID, nil, &note)
	}

	if err := p.docRepo.MarkProcessed(ctx, doc.ID, &text, nil); err != nil {
		return err
	}

	log.WithField("chars", len(text)).Info("✅ Text extraction completed")

	if p.queue != nil {
		if err := p.queue.Enqueue(ctx, TaskGenerateEmbeddings, doc.ID); err != nil {
			return fmt.Errorf("failed to enqueue embedding generation: %w", err)
		}
	}

	return nil
}

type extraction struct {
	text string
	err  error
}

func (p *documentProcessor) extractWithTimeout(ctx context.Context, filePath string) (string, error) {
	if p.opts.ExtractionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.ExtractionTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// The PDF reader takes no context. On timeout the goroutine runs on
	// until it finishes, bounded by MaxPages.
	done := make(chan extraction, 1)
	go func() {
		text, err := p.read(filePath)
		done <- extraction{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.text, res.err
	}
}

// readPages joins the text of at most MaxPages pages with newlines.
func (p *documentProcessor) readPages(filePath string) (text string, err error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read stored file: %w", err)
	}

	reader, err := openPDF(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptedFile, err)
	}

	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: malformed PDF content: %v", ErrCorruptedFile, r)
		}
	}()

	totalPages := reader.NumPage()
	if p.opts.MaxPages > 0 && totalPages > p.opts.MaxPages {
		totalPages = p.opts.MaxPages
	}

	parts := make([]string, 0, totalPages)
	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", pageIndex, err)
		}
		parts = append(parts, pageText)
	}

	return strings.Join(parts, "\n"), nil
}

// Discard deletes a document with its embeddings and stored file.
func (p *documentProcessor) Discard(ctx context.Context, documentID uuid.UUID) error {
	doc, err := p.docRepo.FindByID(ctx, documentID)
	if err != nil {
		return err
	}

	if err := p.docRepo.Delete(ctx, doc.ID); err != nil {
		return err
	}

	if p.index != nil {
		if err := p.index.DeleteDocument(ctx, doc.ID); err != nil {
			logrus.WithError(err).WithField("document_id", doc.ID).Warn("⚠️  Failed to remove document from similarity index")
		}
	}

	p.removeFile(doc.FilePath)
	return nil
}

func (p *documentProcessor) removeFile(filePath string) {
	if err := p.storage.DeleteFile(filePath); err != nil {
		logrus.WithError(err).WithField("path", filePath).Warn("⚠️  Failed to remove stored file")
	}
}
