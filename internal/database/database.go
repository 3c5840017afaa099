package database

import (
	"fmt"

	"github.com/rolechat/backend/internal/config"
	"github.com/rolechat/backend/internal/models"
	"github.com/rolechat/backend/pkg/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := Seed(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Room{},
		&models.RoomMember{},
		&models.Message{},
	)
}

// Seed guarantees a usable installation: the global room always exists,
// and a fresh database gets a first admin account so the directory is
// never without one.
func Seed(db *gorm.DB) error {
	if err := db.FirstOrCreate(&models.Room{}, models.Room{ID: models.GlobalRoomID}).Error; err != nil {
		return err
	}

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := utils.HashPassword("admin123")
	if err != nil {
		return err
	}

	admin := models.User{
		Email:        "admin@rolechat.local",
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}

	return db.Create(&admin).Error
}
