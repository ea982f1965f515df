package handlers

import (
	"squad-hub/middleware"
	"squad-hub/services"

	"github.com/gofiber/fiber/v2"
)

type joinQueueBody struct {
	GameMode      string `json:"game_mode"`
	MapPreference string `json:"map_preference"`
}

func SetupQueueRoutes(public, secured fiber.Router, queue *services.QueueService) {
	public.Get("/maps", func(c *fiber.Ctx) error {
		return c.JSON(queue.Maps())
	})

	public.Get("/queue/:mode", func(c *fiber.Ctx) error {
		list, err := queue.ListQueuedPlayers(c.UserContext(), c.Params("mode"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	secured.Post("/queue", func(c *fiber.Ctx) error {
		var body joinQueueBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
		entry, err := queue.JoinQueue(c.UserContext(), middleware.CurrentPlayer(c), body.GameMode, body.MapPreference)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(entry)
	})

	secured.Delete("/queue", func(c *fiber.Ctx) error {
		if err := queue.LeaveQueue(c.UserContext(), middleware.CurrentPlayer(c)); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	secured.Get("/queue/status", func(c *fiber.Ctx) error {
		status, err := queue.QueueStatus(c.UserContext(), middleware.CurrentPlayer(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(status)
	})
}
