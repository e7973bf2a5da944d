package validation

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	startKey    = "validated_start"
	decisionKey = "validated_decision"
	advanceKey  = "validated_advance"
)

var (
	// Procedure and user ids are slugs or UUIDs.
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)
	xssPattern        = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)
)

type Config struct {
	// MaxTimeSpent caps the per-step time a client may report.
	MaxTimeSpent        time.Duration
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func (cfg *Config) setDefaults() {
	if cfg.MaxTimeSpent == 0 {
		cfg.MaxTimeSpent = 24 * time.Hour
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
}

type StartRequest struct {
	UserID      string `json:"user_id"`
	ProcedureID string `json:"procedure_id"`
}

type DecisionRequest struct {
	Step             *int     `json:"step"`
	Option           *int     `json:"option"`
	TimeSpentSeconds *float64 `json:"time_spent_seconds"`
}

type AdvanceRequest struct {
	Step             *int     `json:"step"`
	TimeSpentSeconds *float64 `json:"time_spent_seconds"`
}

// Middleware rejects write requests whose body is not JSON.
func Middleware(cfg Config) fiber.Handler {
	cfg.setDefaults()

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}
		return c.Next()
	}
}

func Start(cfg Config) fiber.Handler {
	cfg.setDefaults()

	return func(c *fiber.Ctx) error {
		var req StartRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		req.UserID = sanitizeString(req.UserID)
		req.ProcedureID = sanitizeString(req.ProcedureID)

		if req.UserID == "" || req.ProcedureID == "" {
			return badRequest(c, "user_id and procedure_id are required")
		}
		if containsXSS(req.UserID) || containsXSS(req.ProcedureID) {
			cfg.Logger.Warn("Potential XSS attempt", zap.String("ip", c.IP()), zap.String("path", c.Path()))
			return badRequest(c, "Invalid identifier")
		}
		if !isIdentifier(req.UserID) || !isIdentifier(req.ProcedureID) {
			return badRequest(c, "Invalid identifier")
		}

		c.Locals(startKey, req)
		return c.Next()
	}
}

func Decision(cfg Config) fiber.Handler {
	cfg.setDefaults()

	return func(c *fiber.Ctx) error {
		var req DecisionRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
		if req.Step == nil || req.Option == nil || req.TimeSpentSeconds == nil {
			return badRequest(c, "step, option and time_spent_seconds are required")
		}
		if msg := checkTime(*req.TimeSpentSeconds, cfg.MaxTimeSpent); msg != "" {
			return badRequest(c, msg)
		}

		c.Locals(decisionKey, req)
		return c.Next()
	}
}

func Advance(cfg Config) fiber.Handler {
	cfg.setDefaults()

	return func(c *fiber.Ctx) error {
		var req AdvanceRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
		if req.Step == nil || req.TimeSpentSeconds == nil {
			return badRequest(c, "step and time_spent_seconds are required")
		}
		if msg := checkTime(*req.TimeSpentSeconds, cfg.MaxTimeSpent); msg != "" {
			return badRequest(c, msg)
		}

		c.Locals(advanceKey, req)
		return c.Next()
	}
}

// CheckTimeSpent applies the time_spent_seconds rules to callers that do not go through
// the fiber handlers, such as websocket messages. It returns "" when seconds is acceptable.
func (cfg Config) CheckTimeSpent(seconds float64) string {
	cfg.setDefaults()
	return checkTime(seconds, cfg.MaxTimeSpent)
}

// Range checks on step and option belong to the decision engine, which knows the
// procedure; only the time is checked here.
func checkTime(seconds float64, max time.Duration) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "time_spent_seconds must be a finite number"
	}
	if seconds < 0 {
		return "time_spent_seconds must not be negative"
	}
	if seconds > max.Seconds() {
		return "time_spent_seconds exceeds maximum"
	}
	return ""
}

func StartFrom(c *fiber.Ctx) (StartRequest, bool) {
	req, ok := c.Locals(startKey).(StartRequest)
	return req, ok
}

func DecisionFrom(c *fiber.Ctx) (DecisionRequest, bool) {
	req, ok := c.Locals(decisionKey).(DecisionRequest)
	return req, ok
}

func AdvanceFrom(c *fiber.Ctx) (AdvanceRequest, bool) {
	req, ok := c.Locals(advanceKey).(AdvanceRequest)
	return req, ok
}

// Seconds converts a validated time_spent_seconds value.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

func isIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

func sanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}
