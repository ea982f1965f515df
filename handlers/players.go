package handlers

import (
	"squad-hub/middleware"
	"squad-hub/services"

	"github.com/gofiber/fiber/v2"
)

type meResponse struct {
	*services.Resolution
	Queue *services.QueueStatusResult `json:"queue,omitempty"`
}

func SetupPlayerRoutes(public, secured fiber.Router, identity *services.IdentityService, queue *services.QueueService, media *services.MediaService) {
	public.Get("/players/ranking", func(c *fiber.Ctx) error {
		list, err := identity.Ranking(c.UserContext(), c.QueryInt("limit", 50))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	public.Get("/players/search", func(c *fiber.Ctx) error {
		list, err := identity.SearchPlayers(c.UserContext(), c.Query("q"), c.QueryInt("limit", 50))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	public.Get("/players/:id", func(c *fiber.Ctx) error {
		p, err := identity.GetPlayer(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(p)
	})

	secured.Get("/me", func(c *fiber.Ctx) error {
		res := middleware.CurrentResolution(c)
		out := meResponse{Resolution: res}
		if !res.Degraded {
			status, err := queue.QueueStatus(c.UserContext(), res.Player)
			if err != nil {
				return respondError(c, err)
			}
			out.Queue = status
		}
		return c.JSON(out)
	})

	secured.Patch("/me", func(c *fiber.Ctx) error {
		var patch services.ProfilePatch
		if err := c.BodyParser(&patch); err != nil {
			return badRequest(c, "invalid request body")
		}
		p, err := identity.UpdateProfile(c.UserContext(), middleware.CurrentPlayer(c), patch)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(p)
	})

	secured.Post("/me/avatar", func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return badRequest(c, "missing multipart field \"file\"")
		}
		f, err := fh.Open()
		if err != nil {
			return badRequest(c, "could not read file")
		}
		defer f.Close()

		p, err := media.SetPlayerAvatar(c.UserContext(), middleware.CurrentPlayer(c), fh.Size, f)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(p)
	})
}
