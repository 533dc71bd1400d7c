package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"alfredoptarigan/cv-screening/internal/models"
	"alfredoptarigan/cv-screening/internal/repositories"
)

type ResultHandler struct {
	evalRepo repositories.EvaluationRepository
}

func NewResultHandler(evalRepo repositories.EvaluationRepository) *ResultHandler {
	return &ResultHandler{
		evalRepo: evalRepo,
	}
}

// HandleGetResult handles GET /result/:id, where id is the job id returned by
// POST /evaluate.
func (h *ResultHandler) HandleGetResult(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if _, err := uuid.Parse(jobID); err != nil {
		return badRequest(c, "Invalid evaluation ID format")
	}

	job, err := h.evalRepo.FindByJobID(c.UserContext(), jobID)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(models.NewResultResponse(job))
}
