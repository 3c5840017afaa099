package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rolechat/backend/internal/services"
	"github.com/rolechat/backend/pkg/utils"
)

type RolesHandler struct {
	Roles *services.RolesService
}

func NewRolesHandler(roles *services.RolesService) *RolesHandler {
	return &RolesHandler{Roles: roles}
}

func (h *RolesHandler) List(c *fiber.Ctx) error {
	names, err := h.Roles.List(c.Context())
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing roles")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"roles": names})
}

type addRoleRequest struct {
	Name string `json:"name"`
}

func (h *RolesHandler) Add(c *fiber.Ctx) error {
	var req addRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name, err := h.Roles.Add(c.Context(), req.Name)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, fiber.Map{"role": name})
}

type renameRoleRequest struct {
	Name string `json:"name"`
}

// Rename migrates every user holding the old role, then swaps the
// registry entry. The response reports how many records moved.
func (h *RolesHandler) Rename(c *fiber.Ctx) error {
	oldName := c.Params("name")

	var req renameRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updated, err := h.Roles.Rename(c.Context(), oldName, req.Name)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"role":          req.Name,
		"migratedUsers": updated,
	})
}

func (h *RolesHandler) Delete(c *fiber.Ctx) error {
	name, err := h.Roles.Delete(c.Context(), c.Params("name"))
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"role": name})
}
