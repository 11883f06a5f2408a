package store

import (
	"context"

	"behavior-backend/internal/apperr"
	"behavior-backend/internal/models"

	"gorm.io/gorm"
)

// ZoneStore owns DetectionZone rows.
type ZoneStore struct {
	db *gorm.DB
}

// NewZoneStore returns a store backed by db.
func NewZoneStore(db *gorm.DB) *ZoneStore {
	return &ZoneStore{db: db}
}

// Create inserts a zone.
func (s *ZoneStore) Create(ctx context.Context, z *models.DetectionZone) error {
	if err := s.db.WithContext(ctx).Create(z).Error; err != nil {
		return apperr.Internal("zones.create", err)
	}
	return nil
}

// Get loads one zone.
func (s *ZoneStore) Get(ctx context.Context, id uint) (*models.DetectionZone, error) {
	var z models.DetectionZone
	if err := s.db.WithContext(ctx).First(&z, id).Error; err != nil {
		return nil, notFoundOr("zones.get", err, "zone", id)
	}
	return &z, nil
}

// Save writes every column of an existing zone.
func (s *ZoneStore) Save(ctx context.Context, z *models.DetectionZone) error {
	if _, err := s.Get(ctx, z.ID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(z).Error; err != nil {
		return apperr.Internal("zones.save", err)
	}
	return nil
}

// Delete removes one zone.
func (s *ZoneStore) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.DetectionZone{}, id)
	if res.Error != nil {
		return apperr.Internal("zones.delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("zones.delete", "zone %d not found", id)
	}
	return nil
}

// ByOwner lists the owner's zones, optionally only the active ones.
func (s *ZoneStore) ByOwner(ctx context.Context, ownerID uint, activeOnly bool) ([]models.DetectionZone, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", ownerID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []models.DetectionZone
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		return nil, apperr.Internal("zones.list", err)
	}
	return out, nil
}

// Toggle flips the active flag and returns the updated zone.
func (s *ZoneStore) Toggle(ctx context.Context, id uint) (*models.DetectionZone, error) {
	var z models.DetectionZone
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&z, id).Error; err != nil {
			return notFoundOr("zones.toggle", err, "zone", id)
		}
		z.IsActive = !z.IsActive
		if err := tx.Model(&z).Update("is_active", z.IsActive).Error; err != nil {
			return apperr.Internal("zones.toggle", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &z, nil
}
