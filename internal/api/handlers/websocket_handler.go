package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/vetlab/backend/internal/middleware/validation"
	"github.com/vetlab/backend/internal/session"
	"github.com/vetlab/backend/pkg/logger"
)

// WebSocketHandler lets a simulator client drive a session over one connection:
// each "decide", "advance" or "snapshot" message gets exactly one reply.
type WebSocketHandler struct {
	manager    *session.Manager
	validation validation.Config
	timeout    time.Duration
}

func NewWebSocketHandler(manager *session.Manager, cfg validation.Config) *WebSocketHandler {
	return &WebSocketHandler{
		manager:    manager,
		validation: cfg,
		timeout:    10 * time.Second,
	}
}

type wsRequest struct {
	Type             string   `json:"type"`
	SessionID        string   `json:"session_id"`
	Step             *int     `json:"step"`
	Option           *int     `json:"option"`
	TimeSpentSeconds *float64 `json:"time_spent_seconds"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsRequest
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if err := h.handle(c, msg); err != nil {
			logger.Error("Failed to write WebSocket reply", zap.Error(err))
			break
		}
	}
}

func (h *WebSocketHandler) handle(c *websocket.Conn, msg wsRequest) error {
	if reason := h.validate(msg); reason != "" {
		return h.sendError(c, msg.Type, reason, 400)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	switch msg.Type {
	case "decide":
		spent := validation.Seconds(*msg.TimeSpentSeconds)
		outcome, err := h.manager.Decide(ctx, msg.SessionID, *msg.Step, *msg.Option, spent)
		if err != nil {
			return h.sendError(c, msg.Type, err.Error(), errorStatus(err))
		}
		return h.send(c, "outcome", outcome)
	case "advance":
		spent := validation.Seconds(*msg.TimeSpentSeconds)
		outcome, err := h.manager.Advance(ctx, msg.SessionID, *msg.Step, spent)
		if err != nil {
			return h.sendError(c, msg.Type, err.Error(), errorStatus(err))
		}
		return h.send(c, "outcome", outcome)
	case "snapshot":
		view, err := h.manager.Snapshot(ctx, msg.SessionID)
		if err != nil {
			return h.sendError(c, msg.Type, err.Error(), errorStatus(err))
		}
		return h.send(c, "snapshot", view)
	default:
		return h.sendError(c, msg.Type, "unknown message type", 400)
	}
}

// validate holds websocket messages to the same rules as the HTTP decision and
// advance routes. It returns "" for an acceptable message.
func (h *WebSocketHandler) validate(msg wsRequest) string {
	if msg.SessionID == "" {
		return "session_id is required"
	}

	switch msg.Type {
	case "decide":
		if msg.Step == nil || msg.Option == nil || msg.TimeSpentSeconds == nil {
			return "step, option and time_spent_seconds are required"
		}
	case "advance":
		if msg.Step == nil || msg.TimeSpentSeconds == nil {
			return "step and time_spent_seconds are required"
		}
	default:
		return ""
	}
	return h.validation.CheckTimeSpent(*msg.TimeSpentSeconds)
}

func (h *WebSocketHandler) send(c *websocket.Conn, msgType string, payload interface{}) error {
	return c.WriteJSON(map[string]interface{}{
		"type": msgType,
		"data": payload,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, requestType, errorMsg string, code int) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    "error",
		"request": requestType,
		"error":   errorMsg,
		"code":    code,
	})
}
