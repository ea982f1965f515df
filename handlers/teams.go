package handlers

import (
	"squad-hub/middleware"
	"squad-hub/services"

	"github.com/gofiber/fiber/v2"
)

type memberRoleBody struct {
	Role string `json:"role"`
}

type transferBody struct {
	NewCaptainID string `json:"new_captain_id"`
}

type joinRequestBody struct {
	Message *string `json:"message"`
}

type respondBody struct {
	Accept *bool `json:"accept"`
}

// SetupTeamRoutes registers roster and join-request routes. secured must
// already resolve the current player.
func SetupTeamRoutes(public, secured fiber.Router, teams *services.TeamService, requests *services.JoinRequestService, media *services.MediaService) {
	public.Get("/teams", func(c *fiber.Ctx) error {
		list, err := teams.ListTeams(c.UserContext(), services.TeamFilter{
			Search: c.Query("search"),
			Status: c.Query("status"),
			Limit:  c.QueryInt("limit", 50),
			Offset: c.QueryInt("offset", 0),
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	public.Get("/teams/:id", func(c *fiber.Ctx) error {
		team, err := teams.GetTeam(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(team)
	})

	secured.Post("/teams", func(c *fiber.Ctx) error {
		var in services.CreateTeamInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid request body")
		}
		team, err := teams.CreateTeam(c.UserContext(), middleware.CurrentPlayer(c), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(team)
	})

	secured.Patch("/teams/:id", func(c *fiber.Ctx) error {
		var patch services.TeamPatch
		if err := c.BodyParser(&patch); err != nil {
			return badRequest(c, "invalid request body")
		}
		team, err := teams.UpdateTeam(c.UserContext(), c.Params("id"), middleware.CurrentPlayer(c), patch)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(team)
	})

	secured.Post("/teams/:id/media/:kind", func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return badRequest(c, "missing multipart field \"file\"")
		}
		f, err := fh.Open()
		if err != nil {
			return badRequest(c, "could not read file")
		}
		defer f.Close()

		team, err := media.SetTeamMedia(c.UserContext(), c.Params("id"), middleware.CurrentPlayer(c), c.Params("kind"), fh.Size, f)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(team)
	})

	secured.Patch("/teams/:id/members/:memberId/role", func(c *fiber.Ctx) error {
		var body memberRoleBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
		m, err := teams.UpdateMemberRole(c.UserContext(), c.Params("id"), middleware.CurrentPlayer(c), c.Params("memberId"), body.Role)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(m)
	})

	secured.Delete("/teams/:id/members/:memberId", func(c *fiber.Ctx) error {
		if err := teams.RemoveMember(c.UserContext(), c.Params("id"), middleware.CurrentPlayer(c), c.Params("memberId")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	secured.Post("/teams/:id/leave", func(c *fiber.Ctx) error {
		if err := teams.LeaveTeam(c.UserContext(), c.Params("id"), middleware.CurrentPlayer(c)); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	secured.Post("/teams/:id/captain", func(c *fiber.Ctx) error {
		var body transferBody
		if err := c.BodyParser(&body); err != nil || body.NewCaptainID == "" {
			return badRequest(c, "new_captain_id is required")
		}
		if err := teams.TransferCaptaincy(c.UserContext(), c.Params("id"), middleware.CurrentPlayer(c), body.NewCaptainID); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	secured.Post("/teams/:id/requests", func(c *fiber.Ctx) error {
		var body joinRequestBody
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return badRequest(c, "invalid request body")
			}
		}
		req, err := requests.RequestToJoin(c.UserContext(), c.Params("id"), middleware.CurrentPlayer(c), body.Message)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(req)
	})

	secured.Get("/teams/:id/requests", func(c *fiber.Ctx) error {
		list, err := requests.ListRequests(c.UserContext(), c.Params("id"), middleware.CurrentPlayer(c), c.Query("status"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	secured.Post("/teams/:id/requests/:requestId/respond", func(c *fiber.Ctx) error {
		var body respondBody
		if err := c.BodyParser(&body); err != nil || body.Accept == nil {
			return badRequest(c, "accept is required")
		}
		req, err := requests.RespondToRequest(c.UserContext(), c.Params("requestId"), c.Params("id"), middleware.CurrentPlayer(c), *body.Accept)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(req)
	})

	secured.Get("/me/requests", func(c *fiber.Ctx) error {
		list, err := requests.ListMyRequests(c.UserContext(), middleware.CurrentPlayer(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	secured.Delete("/requests/:requestId", func(c *fiber.Ctx) error {
		if err := requests.CancelRequest(c.UserContext(), c.Params("requestId"), middleware.CurrentPlayer(c)); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
