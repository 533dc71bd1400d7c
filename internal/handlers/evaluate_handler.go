package handlers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-screening/internal/models"
	"alfredoptarigan/cv-screening/internal/repositories"
	"alfredoptarigan/cv-screening/internal/services"
)

type EvaluationHandler struct {
	evalRepo repositories.EvaluationRepository
	docRepo  repositories.DocumentRepository
	queue    services.TaskEnqueuer
}

func NewEvaluationHandler(
	evalRepo repositories.EvaluationRepository,
	docRepo repositories.DocumentRepository,
	queue services.TaskEnqueuer,
) *EvaluationHandler {
	return &EvaluationHandler{
		evalRepo: evalRepo,
		docRepo:  docRepo,
		queue:    queue,
	}
}

// HandleEvaluate handles POST /evaluate
func (h *EvaluationHandler) HandleEvaluate(c *fiber.Ctx) error {
	var req models.EvaluateRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
			"code":  fiber.StatusBadRequest,
		})
	}

	if strings.TrimSpace(req.JobTitle) == "" {
		return badRequest(c, "job_title is required")
	}

	cvDocID, err := uuid.Parse(req.CVDocumentID)
	if err != nil {
		return badRequest(c, "Invalid cv_document_id format")
	}

	projectDocID, err := uuid.Parse(req.ProjectDocumentID)
	if err != nil {
		return badRequest(c, "Invalid project_document_id format")
	}

	ctx := c.UserContext()

	cvDoc, err := h.docRepo.FindByID(ctx, cvDocID)
	if err != nil {
		return mapError(c, fmt.Errorf("CV document: %w", err))
	}

	projectDoc, err := h.docRepo.FindByID(ctx, projectDocID)
	if err != nil {
		return mapError(c, fmt.Errorf("project document: %w", err))
	}

	job, err := models.NewEvaluationJob(req.JobTitle, cvDoc, projectDoc, userIDFrom(c))
	if err != nil {
		return mapError(c, err)
	}

	for _, doc := range []*models.Document{cvDoc, projectDoc} {
		if !doc.Processed {
			return mapError(c, fmt.Errorf("%w: %s document %s", services.ErrDocumentNotReady, doc.DocumentType, doc.ID))
		}
	}

	if err := h.evalRepo.Create(ctx, job); err != nil {
		return mapError(c, err)
	}

	// The stale job poller picks the job up if this enqueue is lost.
	if err := h.queue.Enqueue(ctx, services.TaskEvaluate, job.ID); err != nil {
		logrus.WithError(err).WithField("job_id", job.JobID).Warn("⚠️  Failed to enqueue evaluation")
	}

	return c.Status(fiber.StatusCreated).JSON(models.EvaluateResponse{
		ID:     job.JobID,
		Status: string(job.Status),
	})
}
