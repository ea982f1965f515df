package middleware

import (
	"errors"
	"log/slog"

	"squad-hub/models"
	"squad-hub/services"

	"github.com/gofiber/fiber/v2"
)

const resolutionLocal = "resolution"

// ResolvePlayer maps the request identity to a stored player on every
// request. A degraded resolution is attached as is; writes reject it.
func ResolvePlayer(identity *services.IdentityService, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := identity.ResolveCurrentPlayer(c.UserContext(), services.StaticSession{Identity: Identity(c)})
		if err != nil {
			status := fiber.StatusServiceUnavailable
			if errors.Is(err, services.ErrUnauthenticated) {
				status = fiber.StatusUnauthorized
			}
			return c.Status(status).JSON(fiber.Map{
				"error":   services.KindOf(err),
				"message": services.MessageOf(err),
			})
		}
		if res.Degraded {
			logger.Warn("serving degraded identity", slog.String("path", c.Path()), slog.String("auth_id", res.Player.AuthID))
			c.Set("X-Identity-Degraded", "true")
		}
		c.Locals(resolutionLocal, res)
		return c.Next()
	}
}

// CurrentPlayer returns the player attached by ResolvePlayer, or nil.
func CurrentPlayer(c *fiber.Ctx) *models.Player {
	if res := CurrentResolution(c); res != nil {
		return res.Player
	}
	return nil
}

func CurrentResolution(c *fiber.Ctx) *services.Resolution {
	res, _ := c.Locals(resolutionLocal).(*services.Resolution)
	return res
}
