package database

import (
	"errors"
	"fmt"

	"behavior-backend/internal/models"
	"behavior-backend/internal/utils"

	"gorm.io/gorm"
)

// SeedAdmin creates the bootstrap admin account when it does not exist yet.
// An empty username is a no-op.
func SeedAdmin(db *gorm.DB, username, password string) (bool, error) {
	if username == "" {
		return false, nil
	}
	if password == "" {
		return false, fmt.Errorf("ADMIN_PASSWORD must be set when ADMIN_USERNAME is")
	}

	var existing models.User
	err := db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("failed to hash admin password: %w", err)
	}
	admin := models.User{
		Username: username,
		Password: hash,
		Role:     models.RoleAdmin,
		Active:   true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return false, err
	}
	return true, nil
}
