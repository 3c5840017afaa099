package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rolechat/backend/internal/models"
	"github.com/rolechat/backend/pkg/logger"
	"gorm.io/gorm"
)

// DirectoryService is the admin surface over user records. Every guard
// (self-demotion, self-deletion, last admin) is evaluated before a write,
// so a rejected call leaves no partial state.
type DirectoryService struct {
	DB    *gorm.DB
	Roles *RolesService
}

func NewDirectoryService(db *gorm.DB, roles *RolesService) *DirectoryService {
	return &DirectoryService{DB: db, Roles: roles}
}

type PlaceholderInput struct {
	ID    *uuid.UUID
	Email string
	Role  string
}

func (s *DirectoryService) get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return nil, err
	}
	return &user, nil
}

func (s *DirectoryService) adminCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ?", models.RoleAdmin).
		Count(&count).Error
	return count, err
}

// guardDemotion rejects any role change away from admin that would either
// demote the caller or leave the directory without an admin.
func (s *DirectoryService) guardDemotion(ctx context.Context, callerID uuid.UUID, target *models.User, newRole string) error {
	if newRole == models.RoleAdmin {
		return nil
	}
	if target.ID == callerID {
		return ErrSelfDemotion
	}
	if target.Role == models.RoleAdmin {
		count, err := s.adminCount(ctx)
		if err != nil {
			return err
		}
		if count <= 1 {
			return fmt.Errorf("%w: create another admin first", ErrLastAdmin)
		}
	}
	return nil
}

func (s *DirectoryService) ChangeRole(ctx context.Context, callerID, userID uuid.UUID, newRole string) (*models.User, error) {
	newRole = strings.TrimSpace(newRole)
	if newRole == "" {
		return nil, fmt.Errorf("%w: role cannot be empty", ErrValidation)
	}
	valid, err := s.Roles.Exists(ctx, newRole)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, fmt.Errorf("%w: role %q is not in the registry", ErrValidation, newRole)
	}

	return s.setRole(ctx, callerID, userID, newRole)
}

// ClearRole removes the role field entirely; the user keeps their record
// but no longer passes any role gate.
func (s *DirectoryService) ClearRole(ctx context.Context, callerID, userID uuid.UUID) (*models.User, error) {
	return s.setRole(ctx, callerID, userID, "")
}

// ResetRole puts the target back on the default role.
func (s *DirectoryService) ResetRole(ctx context.Context, callerID, userID uuid.UUID) (*models.User, error) {
	return s.setRole(ctx, callerID, userID, models.RoleUser)
}

func (s *DirectoryService) setRole(ctx context.Context, callerID, userID uuid.UUID, newRole string) (*models.User, error) {
	target, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.guardDemotion(ctx, callerID, target, newRole); err != nil {
		return nil, err
	}

	if err := s.DB.WithContext(ctx).
		Model(target).
		Update("role", newRole).Error; err != nil {
		return nil, err
	}

	logger.InfoWithUser(callerID.String(), "user_role_changed", map[string]interface{}{
		"target_id": userID.String(),
		"new_role":  newRole,
	})
	return target, nil
}

func (s *DirectoryService) UpdateEmail(ctx context.Context, callerID, userID uuid.UUID, email string) (*models.User, error) {
	target, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.DB.WithContext(ctx).
		Model(target).
		Update("email", strings.TrimSpace(email)).Error; err != nil {
		return nil, err
	}

	logger.InfoWithUser(callerID.String(), "user_email_changed", map[string]interface{}{
		"target_id": userID.String(),
	})
	return target, nil
}

func (s *DirectoryService) Delete(ctx context.Context, callerID, userID uuid.UUID) error {
	if userID == callerID {
		return ErrSelfDeletion
	}

	target, err := s.get(ctx, userID)
	if err != nil {
		return err
	}
	if target.Role == models.RoleAdmin {
		count, err := s.adminCount(ctx)
		if err != nil {
			return err
		}
		if count <= 1 {
			return fmt.Errorf("%w: cannot delete the last admin", ErrLastAdmin)
		}
	}

	if err := s.DB.WithContext(ctx).Delete(&models.User{}, "id = ?", userID).Error; err != nil {
		return err
	}

	logger.InfoWithUser(callerID.String(), "user_deleted", map[string]interface{}{
		"target_id": userID.String(),
	})
	return nil
}

// UpsertPlaceholder pre-provisions a user record (no credentials) so a role
// can be assigned before the real identity registers. With an explicit ID
// the record is created or merged at that ID; otherwise a new ID is
// generated.
func (s *DirectoryService) UpsertPlaceholder(ctx context.Context, callerID uuid.UUID, input PlaceholderInput) (*models.User, error) {
	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = models.RoleUser
	}
	valid, err := s.Roles.Exists(ctx, role)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, fmt.Errorf("%w: role %q is not in the registry", ErrValidation, role)
	}

	email := strings.TrimSpace(input.Email)

	if input.ID != nil {
		var user models.User
		err := s.DB.WithContext(ctx).First(&user, "id = ?", *input.ID).Error
		switch {
		case err == nil:
			updates := map[string]interface{}{"email": email, "role": role}
			if err := s.DB.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
				return nil, err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = models.User{
				BaseModel: models.BaseModel{ID: *input.ID},
				Email:     email,
				Role:      role,
			}
			if err := s.DB.WithContext(ctx).Create(&user).Error; err != nil {
				return nil, err
			}
		default:
			return nil, err
		}

		logger.InfoWithUser(callerID.String(), "user_placeholder_upserted", map[string]interface{}{
			"target_id": user.ID.String(),
			"role":      role,
		})
		return &user, nil
	}

	user := models.User{Email: email, Role: role}
	if err := s.DB.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}

	logger.InfoWithUser(callerID.String(), "user_placeholder_created", map[string]interface{}{
		"target_id": user.ID.String(),
		"role":      role,
	})
	return &user, nil
}
