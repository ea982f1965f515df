package handlers

import (
	"errors"

	"squad-hub/services"

	"github.com/gofiber/fiber/v2"
)

var statusByKind = map[services.ErrorKind]int{
	services.KindUnauthenticated:      fiber.StatusUnauthorized,
	services.KindNotCaptain:           fiber.StatusForbidden,
	services.KindTeamNotFound:         fiber.StatusNotFound,
	services.KindPlayerNotFound:       fiber.StatusNotFound,
	services.KindRequestNotFound:      fiber.StatusNotFound,
	services.KindNotAMember:           fiber.StatusNotFound,
	services.KindAlreadyOnTeam:        fiber.StatusConflict,
	services.KindCannotRemoveSelf:     fiber.StatusConflict,
	services.KindCaptaincyViaTransfer: fiber.StatusConflict,
	services.KindCaptainMustTransfer:  fiber.StatusConflict,
	services.KindTeamFull:             fiber.StatusConflict,
	services.KindTeamNotRecruiting:    fiber.StatusConflict,
	services.KindDuplicateRequest:     fiber.StatusConflict,
	services.KindAlreadyResolved:      fiber.StatusConflict,
	services.KindInvalidInput:         fiber.StatusBadRequest,
	services.KindStoreUnavailable:     fiber.StatusServiceUnavailable,
}

// StatusOf maps a service error to its HTTP status.
func StatusOf(err error) int {
	if status, ok := statusByKind[services.KindOf(err)]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	return c.Status(StatusOf(err)).JSON(fiber.Map{
		"error":   services.KindOf(err),
		"message": services.MessageOf(err),
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   services.KindInvalidInput,
		"message": message,
	})
}

// ErrorHandler renders errors that escape handlers (routing, body limits)
// in the same shape as service errors.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		kind := services.KindInvalidInput
		switch {
		case fe.Code == fiber.StatusNotFound:
			kind = "not_found"
		case fe.Code >= fiber.StatusInternalServerError:
			kind = services.KindStoreUnavailable
		}
		return c.Status(fe.Code).JSON(fiber.Map{"error": kind, "message": fe.Message})
	}
	return respondError(c, err)
}
