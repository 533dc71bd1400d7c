package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-screening/internal/models"
	"alfredoptarigan/cv-screening/internal/repositories"
	"alfredoptarigan/cv-screening/internal/services"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, services.ErrFileTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrDuplicateFile), errors.Is(err, repositories.ErrDuplicate):
		return fiber.StatusConflict
	case errors.Is(err, repositories.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrDocumentNotReady):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrInvalidFile),
		errors.Is(err, services.ErrCorruptedFile),
		errors.Is(err, services.ErrInvalidArgument),
		errors.Is(err, models.ErrValidation):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func mapError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	message := err.Error()

	if code == fiber.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.Path()).Error("❌ Request failed")
		message = "internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
		"code":  fiber.StatusBadRequest,
	})
}

// ErrorHandler is the fiber error handler for errors returned by routes.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return mapError(c, err)
}
