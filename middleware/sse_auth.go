package middleware

import (
	"log/slog"
	"strings"

	"squad-hub/services"

	"github.com/gofiber/fiber/v2"
)

// SSEAuthMiddleware authenticates stream requests from the `token` and
// `device_id` query params, since EventSource cannot set headers.
//
//	app.Get("/queue/:mode/stream", middleware.SSEAuthMiddleware(authClient, logger), h.StreamQueue)
func SSEAuthMiddleware(authClient *services.AuthServiceClient, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))
		if accessToken == "" || deviceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "invalid_input",
				"message": "missing token or device_id in query",
			})
		}

		session := services.TokenSession{Client: authClient, AccessToken: accessToken, DeviceID: deviceID}
		identity, err := session.CurrentUser(c.UserContext())
		if err != nil || identity == nil || identity.AuthID == "" {
			logger.Warn("stream token rejected",
				slog.String("path", c.Path()),
				slog.String("device_id", deviceID),
				slog.String("token_prefix", accessToken[:min(6, len(accessToken))]),
				slog.Any("error", err),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthenticated",
				"message": "invalid stream token",
			})
		}

		c.Locals(identityLocal, identity)
		return c.Next()
	}
}
