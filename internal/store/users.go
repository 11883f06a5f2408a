package store

import (
	"context"
	"errors"

	"behavior-backend/internal/apperr"
	"behavior-backend/internal/models"

	"gorm.io/gorm"
)

// UserStore reads login accounts.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore returns a store backed by db.
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// ByUsername loads an account by its unique username.
func (s *UserStore) ByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("users.get", "user %q not found", username)
		}
		return nil, apperr.Internal("users.get", err)
	}
	return &u, nil
}
