package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rolechat/backend/internal/middleware"
	"github.com/rolechat/backend/internal/models"
	"github.com/rolechat/backend/internal/services"
	"github.com/rolechat/backend/pkg/utils"
	"gorm.io/gorm"
)

// UsersHandler is the admin user directory. Guard logic lives in the
// directory service; this layer parses requests and maps errors.
type UsersHandler struct {
	DB        *gorm.DB
	Directory *services.DirectoryService
}

func NewUsersHandler(db *gorm.DB, directory *services.DirectoryService) *UsersHandler {
	return &UsersHandler{DB: db, Directory: directory}
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	search := strings.TrimSpace(c.Query("search"))

	query := h.DB.Model(&models.User{})
	if search != "" {
		query = query.Where("LOWER(email) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting users")
	}

	var users []models.User
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}

	return utils.Paginated(c, users, p.Page, p.Limit, total)
}

// Search is open to any authenticated user; it backs the private-chat
// member picker.
func (h *UsersHandler) Search(c *fiber.Ctx) error {
	search := strings.TrimSpace(c.Query("search"))
	limit := c.QueryInt("limit", 5)
	if limit > 50 {
		limit = 50
	}

	query := h.DB.Model(&models.User{})
	if search != "" {
		query = query.Where("LOWER(email) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var users []models.User
	if err := query.Order("created_at DESC").Limit(limit).Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed searching users")
	}

	return utils.Success(c, fiber.StatusOK, users)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	return utils.Success(c, fiber.StatusOK, user)
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (h *UsersHandler) ChangeRole(c *fiber.Ctx) error {
	caller := middleware.GetCurrentUser(c)
	if caller == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req changeRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.Directory.ChangeRole(c.Context(), caller.ID, userID, req.Role)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, user)
}

func (h *UsersHandler) ClearRole(c *fiber.Ctx) error {
	caller := middleware.GetCurrentUser(c)
	if caller == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	user, err := h.Directory.ClearRole(c.Context(), caller.ID, userID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, user)
}

func (h *UsersHandler) ResetRole(c *fiber.Ctx) error {
	caller := middleware.GetCurrentUser(c)
	if caller == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	user, err := h.Directory.ResetRole(c.Context(), caller.ID, userID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, user)
}

type updateEmailRequest struct {
	Email string `json:"email"`
}

func (h *UsersHandler) UpdateEmail(c *fiber.Ctx) error {
	caller := middleware.GetCurrentUser(c)
	if caller == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req updateEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.Directory.UpdateEmail(c.Context(), caller.ID, userID, req.Email)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, user)
}

func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	caller := middleware.GetCurrentUser(c)
	if caller == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if err := h.Directory.Delete(c.Context(), caller.ID, userID); err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "user deleted"})
}

type placeholderRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// CreatePlaceholder pre-provisions a user record so a role can be
// assigned before the identity registers.
func (h *UsersHandler) CreatePlaceholder(c *fiber.Ctx) error {
	caller := middleware.GetCurrentUser(c)
	if caller == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req placeholderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	input := services.PlaceholderInput{Email: req.Email, Role: req.Role}
	if strings.TrimSpace(req.ID) != "" {
		id, err := parseUUID(req.ID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
		}
		input.ID = &id
	}

	user, err := h.Directory.UpsertPlaceholder(c.Context(), caller.ID, input)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, user)
}
