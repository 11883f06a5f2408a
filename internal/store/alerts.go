package store

import (
	"context"
	"time"

	"behavior-backend/internal/apperr"
	"behavior-backend/internal/models"

	"gorm.io/gorm"
)

// AlertStore owns Alert rows.
type AlertStore struct {
	db *gorm.DB
}

// NewAlertStore returns a store backed by db.
func NewAlertStore(db *gorm.DB) *AlertStore {
	return &AlertStore{db: db}
}

// Create inserts a new alert.
func (s *AlertStore) Create(ctx context.Context, a *models.Alert) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return apperr.Internal("alerts.create", err)
	}
	return nil
}

// Get loads one alert.
func (s *AlertStore) Get(ctx context.Context, id uint) (*models.Alert, error) {
	var a models.Alert
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, notFoundOr("alerts.get", err, "alert", id)
	}
	return &a, nil
}

func (s *AlertStore) byOwner(ctx context.Context, ownerID uint) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Alert{}).Where("user_id = ?", ownerID)
}

// ListByOwner returns one page of the owner's alerts, newest first, and the total count.
func (s *AlertStore) ListByOwner(ctx context.Context, ownerID uint, page Page) ([]models.Alert, int64, error) {
	q := s.byOwner(ctx, ownerID).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Internal("alerts.list", err)
	}
	var out []models.Alert
	if err := page.apply(q.Order("created_at DESC, id DESC")).Find(&out).Error; err != nil {
		return nil, 0, apperr.Internal("alerts.list", err)
	}
	return out, total, nil
}

// AllByOwner returns every alert of the owner, newest first.
func (s *AlertStore) AllByOwner(ctx context.Context, ownerID uint) ([]models.Alert, error) {
	var out []models.Alert
	if err := s.byOwner(ctx, ownerID).Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, apperr.Internal("alerts.all", err)
	}
	return out, nil
}

// Unhandled returns the owner's alerts not yet handled, newest first.
func (s *AlertStore) Unhandled(ctx context.Context, ownerID uint) ([]models.Alert, error) {
	var out []models.Alert
	err := s.byOwner(ctx, ownerID).Where("is_handled = ?", false).Order("created_at DESC, id DESC").Find(&out).Error
	if err != nil {
		return nil, apperr.Internal("alerts.unhandled", err)
	}
	return out, nil
}

// InRange returns the owner's alerts created within [start, end], newest first.
func (s *AlertStore) InRange(ctx context.Context, ownerID uint, start, end time.Time) ([]models.Alert, error) {
	var out []models.Alert
	err := s.byOwner(ctx, ownerID).
		Where("created_at >= ? AND created_at <= ?", start, end).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, apperr.Internal("alerts.range", err)
	}
	return out, nil
}

// UnreadCount counts the owner's unread alerts.
func (s *AlertStore) UnreadCount(ctx context.Context, ownerID uint) (int64, error) {
	var n int64
	if err := s.byOwner(ctx, ownerID).Where("is_read = ?", false).Count(&n).Error; err != nil {
		return 0, apperr.Internal("alerts.unread", err)
	}
	return n, nil
}

// AlertCounts summarises an owner's alerts.
type AlertCounts struct {
	Total     int64
	Unhandled int64
}

// CountByOwner counts the owner's alerts and how many are unhandled.
func (s *AlertStore) CountByOwner(ctx context.Context, ownerID uint) (AlertCounts, error) {
	var c AlertCounts
	if err := s.byOwner(ctx, ownerID).Count(&c.Total).Error; err != nil {
		return AlertCounts{}, apperr.Internal("alerts.count", err)
	}
	if err := s.byOwner(ctx, ownerID).Where("is_handled = ?", false).Count(&c.Unhandled).Error; err != nil {
		return AlertCounts{}, apperr.Internal("alerts.count", err)
	}
	return c, nil
}

// MarkHandled sets the handled flag and its companion fields in one write.
func (s *AlertStore) MarkHandled(ctx context.Context, id uint, handledBy string, note *string, at time.Time) (*models.Alert, error) {
	var a models.Alert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&a, id).Error; err != nil {
			return notFoundOr("alerts.handle", err, "alert", id)
		}
		err := tx.Model(&a).Updates(map[string]any{
			"is_handled":  true,
			"handled_by":  handledBy,
			"handled_at":  at,
			"handle_note": note,
			"updated_at":  at,
		}).Error
		if err != nil {
			return apperr.Internal("alerts.handle", err)
		}
		return tx.First(&a, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// MarkRead sets the read flag on one alert.
func (s *AlertStore) MarkRead(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.Alert{}).Where("id = ?", id).
		Updates(map[string]any{"is_read": true, "updated_at": time.Now()})
	if res.Error != nil {
		return apperr.Internal("alerts.read", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("alerts.read", "alert %d not found", id)
	}
	return nil
}

// MarkAllRead sets the read flag on every unread alert of the owner and
// returns how many changed.
func (s *AlertStore) MarkAllRead(ctx context.Context, ownerID uint) (int64, error) {
	res := s.byOwner(ctx, ownerID).Where("is_read = ?", false).
		Updates(map[string]any{"is_read": true, "updated_at": time.Now()})
	if res.Error != nil {
		return 0, apperr.Internal("alerts.read_all", res.Error)
	}
	return res.RowsAffected, nil
}

// Delete removes one alert and returns it.
func (s *AlertStore) Delete(ctx context.Context, id uint) (*models.Alert, error) {
	var a models.Alert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&a, id).Error; err != nil {
			return notFoundOr("alerts.delete", err, "alert", id)
		}
		if err := tx.Delete(&models.Alert{}, id).Error; err != nil {
			return apperr.Internal("alerts.delete", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}
