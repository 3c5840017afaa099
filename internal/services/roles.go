package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rolechat/backend/internal/models"
	"github.com/rolechat/backend/pkg/logger"
	"gorm.io/gorm"
)

// RolesService owns the role registry: the set of valid role names plus the
// rename migration that rewrites user records in bounded batches.
type RolesService struct {
	DB *gorm.DB
	// BatchSize bounds each migration transaction; rows beyond it are
	// committed in follow-up batches.
	BatchSize int
}

func NewRolesService(db *gorm.DB, batchSize int) *RolesService {
	if batchSize <= 0 {
		batchSize = 450
	}
	return &RolesService{DB: db, BatchSize: batchSize}
}

// EnsureDefaults seeds {admin, user, quality} when the registry is empty
// and returns the current set.
func (s *RolesService) EnsureDefaults(ctx context.Context) ([]string, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Role{}).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		for _, name := range models.DefaultRoles {
			role := models.Role{Name: name}
			if err := s.DB.WithContext(ctx).
				Where("name = ?", name).
				FirstOrCreate(&role).Error; err != nil {
				return nil, err
			}
		}
	}
	return s.List(ctx)
}

// List returns all role names in registry insertion order.
func (s *RolesService) List(ctx context.Context) ([]string, error) {
	var names []string
	err := s.DB.WithContext(ctx).
		Model(&models.Role{}).
		Order("created_at ASC").
		Pluck("name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Exists reports whether name is in the current registry snapshot.
func (s *RolesService) Exists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&models.Role{}).
		Where("name = ?", name).
		Count(&count).Error
	return count > 0, err
}

func (s *RolesService) Add(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: role name cannot be empty", ErrValidation)
	}
	if strings.EqualFold(name, models.RoleAdmin) {
		return "", fmt.Errorf("%w: cannot create the admin role", ErrProtectedRole)
	}

	exists, err := s.Exists(ctx, name)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: role %q already exists", ErrConflict, name)
	}

	if err := s.DB.WithContext(ctx).Create(&models.Role{Name: name}).Error; err != nil {
		return "", err
	}

	logger.Info("role_added", map[string]interface{}{"role": name})
	return name, nil
}

// Rename changes a role name and migrates every user record referencing the
// old name, in batches of at most BatchSize records each. The registry rows
// are swapped only after every batch has committed, so a crash mid-way
// leaves the operation safely re-runnable: already-migrated users no longer
// match, and the registry still holds the old name.
func (s *RolesService) Rename(ctx context.Context, oldName, newName string) (int64, error) {
	oldName = strings.TrimSpace(oldName)
	newName = strings.TrimSpace(newName)
	if oldName == "" || newName == "" {
		return 0, fmt.Errorf("%w: role name cannot be empty", ErrValidation)
	}
	if oldName == newName {
		return 0, nil
	}
	if strings.EqualFold(oldName, models.RoleAdmin) {
		return 0, fmt.Errorf("%w: cannot rename the admin role", ErrProtectedRole)
	}
	if strings.EqualFold(newName, models.RoleAdmin) {
		return 0, fmt.Errorf("%w: cannot rename a role to admin", ErrProtectedRole)
	}

	oldExists, err := s.Exists(ctx, oldName)
	if err != nil {
		return 0, err
	}
	if !oldExists {
		return 0, fmt.Errorf("%w: role %q does not exist", ErrNotFound, oldName)
	}
	newExists, err := s.Exists(ctx, newName)
	if err != nil {
		return 0, err
	}
	if newExists {
		return 0, fmt.Errorf("%w: role %q already exists", ErrConflict, newName)
	}

	var updated int64
	for {
		var ids []uuid.UUID
		err := s.DB.WithContext(ctx).
			Model(&models.User{}).
			Where("role = ?", oldName).
			Order("id ASC").
			Limit(s.BatchSize).
			Pluck("id", &ids).Error
		if err != nil {
			return updated, err
		}
		if len(ids) == 0 {
			break
		}

		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			result := tx.Model(&models.User{}).
				Where("id IN ? AND role = ?", ids, oldName).
				Update("role", newName)
			if result.Error != nil {
				return result.Error
			}
			updated += result.RowsAffected
			return nil
		})
		if err != nil {
			return updated, err
		}
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Role{Name: newName}).Error; err != nil {
			return err
		}
		return tx.Where("name = ?", oldName).Delete(&models.Role{}).Error
	})
	if err != nil {
		return updated, err
	}

	logger.Info("role_renamed", map[string]interface{}{
		"from":    oldName,
		"to":      newName,
		"updated": updated,
	})
	return updated, nil
}

// Delete removes a role that no user record currently references.
func (s *RolesService) Delete(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: role name cannot be empty", ErrValidation)
	}
	if strings.EqualFold(name, models.RoleAdmin) {
		return "", fmt.Errorf("%w: cannot delete the admin role", ErrProtectedRole)
	}

	var inUse int64
	if err := s.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ?", name).
		Count(&inUse).Error; err != nil {
		return "", err
	}
	if inUse > 0 {
		return "", fmt.Errorf("%w: %d users still use role %q", ErrConflict, inUse, name)
	}

	if err := s.DB.WithContext(ctx).Where("name = ?", name).Delete(&models.Role{}).Error; err != nil {
		return "", err
	}

	logger.Info("role_deleted", map[string]interface{}{"role": name})
	return name, nil
}
