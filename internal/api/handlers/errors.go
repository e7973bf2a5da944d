package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/vetlab/backend/internal/decision"
	"github.com/vetlab/backend/internal/session"
	"github.com/vetlab/backend/pkg/logger"
)

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, decision.ErrInvalidContext):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrProcedureNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, session.ErrSessionCompleted), errors.Is(err, session.ErrReplayDiverged):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error, msg string) error {
	status := errorStatus(err)
	if status == fiber.StatusInternalServerError {
		logger.Error(msg, zap.Error(err), zap.String("path", c.Path()))
		return c.Status(status).JSON(fiber.Map{
			"error": msg,
		})
	}

	body := fiber.Map{
		"error": err.Error(),
	}
	var ctxErr *decision.ContextError
	if errors.As(err, &ctxErr) {
		body["step"] = ctxErr.StepIndex
		body["option"] = ctxErr.OptionIndex
		body["reason"] = ctxErr.Reason
	}
	return c.Status(status).JSON(body)
}
