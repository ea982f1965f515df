package middleware

import (
	"log/slog"
	"strings"

	"squad-hub/services"

	"github.com/gofiber/fiber/v2"
)

const identityLocal = "identity"

// UserContextMiddleware reads the end-user identity the gateway forwards in
// X-User-* headers. Routes under /s/ require it.
func UserContextMiddleware(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			if strings.HasPrefix(c.Path(), "/s/") {
				logger.Warn("user context missing on secured route", slog.String("path", c.Path()))
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error":   "unauthenticated",
					"message": "missing X-User-ID, request must come through the gateway with auth context",
				})
			}
			return c.Next()
		}

		c.Locals(identityLocal, &services.ExternalIdentity{
			AuthID:      userID,
			ProviderID:  strings.TrimSpace(c.Get("X-Steam-ID")),
			DisplayName: strings.TrimSpace(c.Get("X-User-Name")),
			AvatarURL:   strings.TrimSpace(c.Get("X-User-Avatar")),
		})
		return c.Next()
	}
}

// Identity returns the identity attached by UserContextMiddleware or
// SSEAuthMiddleware, or nil.
func Identity(c *fiber.Ctx) *services.ExternalIdentity {
	id, _ := c.Locals(identityLocal).(*services.ExternalIdentity)
	return id
}
