package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/opsportal/notifier/internal/observability"
)

// CorrelationMiddleware seeds the request's user context with the request id
// so service logs can be tied back to the triggering HTTP call.
func CorrelationMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if correlationID := requestCorrelationID(c); correlationID != "" {
			c.SetUserContext(observability.WithCorrelationID(c.UserContext(), correlationID))
		}
		return c.Next()
	}
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
