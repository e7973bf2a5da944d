package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/vetlab/backend/internal/middleware/validation"
	"github.com/vetlab/backend/internal/session"
	"github.com/vetlab/backend/pkg/logger"
)

// LiveReader reads the snapshot last published for a session.
type LiveReader interface {
	LoadSessionSnapshot(ctx context.Context, sessionID string, out interface{}) (bool, error)
}

type SessionHandler struct {
	manager *session.Manager
	live    LiveReader
}

// NewSessionHandler builds the handler. live may be nil when no snapshot store is configured.
func NewSessionHandler(manager *session.Manager, live LiveReader) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		live:    live,
	}
}

func (h *SessionHandler) Start(c *fiber.Ctx) error {
	req, ok := validation.StartFrom(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	view, err := h.manager.Start(c.UserContext(), req.UserID, req.ProcedureID)
	if err != nil {
		return respondError(c, err, "Failed to start session")
	}

	logger.Info("Session started via API", zap.String("session_id", view.ID), zap.String("procedure_id", req.ProcedureID))
	return c.Status(fiber.StatusCreated).JSON(view)
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	view, err := h.manager.Snapshot(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err, "Failed to load session")
	}
	return c.JSON(view)
}

// Live serves the published snapshot without touching the session's engine, for
// instructors watching a run in progress.
func (h *SessionHandler) Live(c *fiber.Ctx) error {
	if h.live == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Live view is not enabled",
		})
	}

	var view session.View
	found, err := h.live.LoadSessionSnapshot(c.UserContext(), c.Params("id"), &view)
	if err != nil {
		logger.Warn("Failed to read live snapshot", zap.String("session_id", c.Params("id")), zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Live view unavailable",
		})
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No live snapshot for session",
		})
	}
	return c.JSON(view)
}

func (h *SessionHandler) Decide(c *fiber.Ctx) error {
	req, ok := validation.DecisionFrom(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	outcome, err := h.manager.Decide(c.UserContext(), c.Params("id"), *req.Step, *req.Option, validation.Seconds(*req.TimeSpentSeconds))
	if err != nil {
		return respondError(c, err, "Failed to process decision")
	}
	return c.JSON(outcome)
}

func (h *SessionHandler) Advance(c *fiber.Ctx) error {
	req, ok := validation.AdvanceFrom(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	outcome, err := h.manager.Advance(c.UserContext(), c.Params("id"), *req.Step, validation.Seconds(*req.TimeSpentSeconds))
	if err != nil {
		return respondError(c, err, "Failed to advance step")
	}
	return c.JSON(outcome)
}

func (h *SessionHandler) Complete(c *fiber.Ctx) error {
	view, err := h.manager.Complete(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err, "Failed to complete session")
	}
	return c.JSON(view)
}
