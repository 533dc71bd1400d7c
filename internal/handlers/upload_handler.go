package handlers

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-screening/internal/models"
	"alfredoptarigan/cv-screening/internal/services"
)

type UploadHandler struct {
	processor   services.DocumentProcessor
	queue       services.TaskEnqueuer
	maxFileSize int64
}

func NewUploadHandler(
	processor services.DocumentProcessor,
	queue services.TaskEnqueuer,
	maxFileSize int64,
) *UploadHandler {
	return &UploadHandler{
		processor:   processor,
		queue:       queue,
		maxFileSize: maxFileSize,
	}
}

// HandleUpload handles POST /upload with the "cv" and "project_report" files.
func (h *UploadHandler) HandleUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return badRequest(c, "failed to parse multipart form")
	}

	cvFile := firstFile(form, "cv")
	projectFile := firstFile(form, "project_report")
	if cvFile == nil || projectFile == nil {
		return badRequest(c, "both 'cv' and 'project_report' PDF files are required")
	}

	ctx := c.UserContext()
	userID := userIDFrom(c)

	cvDoc, err := h.ingest(ctx, cvFile, models.DocumentTypeCV, userID)
	if err != nil {
		return mapError(c, fmt.Errorf("cv: %w", err))
	}

	projectDoc, err := h.ingest(ctx, projectFile, models.DocumentTypeProjectReport, userID)
	if err != nil {
		h.discard(ctx, cvDoc)
		return mapError(c, fmt.Errorf("project_report: %w", err))
	}

	for _, doc := range []*models.Document{cvDoc, projectDoc} {
		if err := h.queue.Enqueue(ctx, services.TaskExtractText, doc.ID); err != nil {
			h.discard(ctx, cvDoc)
			h.discard(ctx, projectDoc)
			return mapError(c, err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(models.UploadResponse{
		Message: "Files uploaded successfully",
		Documents: []models.DocumentResponse{
			models.NewDocumentResponse(cvDoc),
			models.NewDocumentResponse(projectDoc),
		},
	})
}

func (h *UploadHandler) ingest(ctx context.Context, file *multipart.FileHeader, docType models.DocumentType, userID *uuid.UUID) (*models.Document, error) {
	if h.maxFileSize > 0 && file.Size > h.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, max %d", services.ErrFileTooLarge, file.Filename, file.Size, h.maxFileSize)
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}

	return h.processor.Ingest(ctx, services.IngestInput{
		Data:         data,
		ContentType:  file.Header.Get(fiber.HeaderContentType),
		Filename:     file.Filename,
		DocumentType: docType,
		UserID:       userID,
	})
}

func (h *UploadHandler) discard(ctx context.Context, doc *models.Document) {
	if err := h.processor.Discard(ctx, doc.ID); err != nil {
		logrus.WithError(err).WithField("document_id", doc.ID).Warn("⚠️  Failed to discard document")
	}
}

func firstFile(form *multipart.Form, field string) *multipart.FileHeader {
	if files := form.File[field]; len(files) > 0 {
		return files[0]
	}
	return nil
}
