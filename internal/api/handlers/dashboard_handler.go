package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vetlab/backend/internal/dashboard"
)

type DashboardHandler struct {
	aggregator *dashboard.Aggregator
}

func NewDashboardHandler(aggregator *dashboard.Aggregator) *DashboardHandler {
	return &DashboardHandler{
		aggregator: aggregator,
	}
}

// Get returns the user's statistics as JSON, or as a plain-text report with ?format=text.
func (h *DashboardHandler) Get(c *fiber.Ctx) error {
	stats, err := h.aggregator.UserStats(c.UserContext(), c.Params("userId"))
	if err != nil {
		return respondError(c, err, "Failed to compute dashboard")
	}

	if c.Query("format") == "text" {
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(dashboard.FormatReport(stats))
	}
	return c.JSON(stats)
}

func (h *DashboardHandler) CacheStats(c *fiber.Ctx) error {
	return c.JSON(h.aggregator.CacheStats())
}
