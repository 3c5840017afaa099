package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rolechat/backend/internal/services"
	"github.com/rolechat/backend/pkg/utils"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

// serviceError translates the service error taxonomy into an HTTP
// response, keeping the wording of the wrapped error as the user-visible
// message.
func serviceError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrConflict):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrProtectedRole):
		status = fiber.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrSelfDemotion),
		errors.Is(err, services.ErrSelfDeletion),
		errors.Is(err, services.ErrLastAdmin),
		errors.Is(err, services.ErrPermission):
		status = fiber.StatusForbidden
	case errors.Is(err, services.ErrUpload):
		status = fiber.StatusBadGateway
	}
	return utils.Error(c, status, err.Error())
}
