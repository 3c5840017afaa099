package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rolechat/backend/internal/middleware"
	"github.com/rolechat/backend/internal/models"
	"github.com/rolechat/backend/pkg/logger"
	"github.com/rolechat/backend/pkg/utils"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB *gorm.DB
}

func NewAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{DB: db}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func authResponse(token string, user *models.User) fiber.Map {
	return fiber.Map{"token": token, "user": user}
}

// Register creates the user record on first sign-up with the default role.
// If an admin pre-provisioned a placeholder with this email, the identity
// claims it and keeps the assigned role.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return utils.Error(c, fiber.StatusBadRequest, "valid email is required")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	var user models.User
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.User
		findErr := tx.First(&existing, "email = ?", email).Error
		switch {
		case findErr == nil && !existing.IsPlaceholder():
			return fiber.NewError(fiber.StatusConflict, "email already registered")
		case findErr == nil:
			// Claim the placeholder: keep its id and assigned role.
			if err := tx.Model(&existing).Update("password_hash", hash).Error; err != nil {
				return err
			}
			user = existing
			user.PasswordHash = hash
			return nil
		case findErr == gorm.ErrRecordNotFound:
			user = models.User{Email: email, PasswordHash: hash, Role: models.RoleUser}
			return tx.Create(&user).Error
		default:
			return findErr
		}
	})
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return utils.Error(c, fiberErr.Code, fiberErr.Message)
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.InfoWithUser(user.ID.String(), "user_registered", map[string]interface{}{
		"role": user.Role,
	})
	return utils.Success(c, fiber.StatusCreated, authResponse(token, &user))
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	if err := h.DB.First(&user, "email = ?", email).Error; err != nil {
		logger.Warn("login_unknown_email", map[string]interface{}{"ip": c.IP()})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if user.IsPlaceholder() || !utils.CheckPassword(user.PasswordHash, req.Password) {
		logger.Warn("login_bad_password", map[string]interface{}{
			"ip":      c.IP(),
			"user_id": user.ID.String(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.InfoWithUser(user.ID.String(), "user_login", nil)
	return utils.Success(c, fiber.StatusOK, authResponse(token, &user))
}

// Me returns the current session identity with its freshly loaded role.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user)
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if !utils.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		return utils.Error(c, fiber.StatusUnauthorized, "current password is incorrect")
	}
	if len(req.NewPassword) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	if err := h.DB.Model(user).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	logger.InfoWithUser(user.ID.String(), "password_changed", nil)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}
