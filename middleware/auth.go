package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"eco-challenge-engine/logger"
	"eco-challenge-engine/services"
)

const callerKey = "caller"

// UserContextMiddleware turns the identity headers set by the gateway into a
// services.Caller. Paths under /s/ require a user.
func UserContextMiddleware(log *logger.Logger) fiber.Handler {
	log = log.With("middleware", "user_context")

	return func(c *fiber.Ctx) error {
		caller := services.Caller{
			UserID:         strings.TrimSpace(c.Get("X-User-ID")),
			Roles:          splitRoles(c.Get("X-User-Roles")),
			OrganizationID: strings.TrimSpace(c.Get("X-Organization-ID")),
		}

		if strings.HasPrefix(c.Path(), "/s/") && caller.Anonymous() {
			log.Warn("X-User-ID required but missing on secured route", "path", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID: request must come through gateway with auth context",
			})
		}

		c.Locals(callerKey, caller)
		log.Debug("request identity", "user_id", caller.UserID, "roles", caller.Roles, "organization_id", caller.OrganizationID, "path", c.Path())
		return c.Next()
	}
}

// RequireRole rejects callers that lack role.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !CallerFrom(c).HasRole(role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "forbidden",
				"cause": "role " + role + " required",
			})
		}
		return c.Next()
	}
}

// CallerFrom returns the identity stored by UserContextMiddleware, or an
// anonymous caller.
func CallerFrom(c *fiber.Ctx) services.Caller {
	if caller, ok := c.Locals(callerKey).(services.Caller); ok {
		return caller
	}
	return services.Caller{}
}

func splitRoles(raw string) []string {
	var roles []string
	for _, r := range strings.Split(raw, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
