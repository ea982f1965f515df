package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// GatewayAuthMiddleware only lets through requests carrying the gateway's
// bearer token.
func GatewayAuthMiddleware(expectedToken string, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			logger.Warn("gateway token missing", slog.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthenticated",
				"message": "gateway authentication token missing",
			})
		}

		// The gateway may send the raw token without the Bearer prefix.
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			logger.Warn("gateway token rejected", slog.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthenticated",
				"message": "invalid gateway authentication token",
			})
		}

		return c.Next()
	}
}
