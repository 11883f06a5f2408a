package store

import (
	"context"
	"time"

	"behavior-backend/internal/apperr"
	"behavior-backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RecordStore owns DetectionRecord and BehaviorData rows.
type RecordStore struct {
	db *gorm.DB
}

// NewRecordStore returns a store backed by db.
func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db}
}

// Completion is the outcome of a well-formed Detector response.
type Completion struct {
	HasAbnormal      bool
	BehaviorType     *string
	Confidence       *float64
	VisualizationURL *string
	Raw              []byte
	Behaviors        []models.BehaviorData
}

// Create inserts rec in PROCESSING regardless of the status it carries.
func (s *RecordStore) Create(ctx context.Context, rec *models.DetectionRecord) error {
	rec.ID = 0
	rec.Status = models.StatusProcessing
	rec.HasAbnormal = nil
	rec.BehaviorType = nil
	rec.Confidence = nil
	rec.VisualizationURL = nil
	rec.DetectionResult = nil
	rec.ErrorMessage = nil
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return apperr.Internal("records.create", err)
	}
	return nil
}

// Get loads one record.
func (s *RecordStore) Get(ctx context.Context, id uint) (*models.DetectionRecord, error) {
	var rec models.DetectionRecord
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, notFoundOr("records.get", err, "detection record", id)
	}
	return &rec, nil
}

// ListByOwner returns one page of the owner's records, newest first, and the total count.
func (s *RecordStore) ListByOwner(ctx context.Context, ownerID uint, page Page) ([]models.DetectionRecord, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.DetectionRecord{}).Where("user_id = ?", ownerID).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Internal("records.list", err)
	}

	var recs []models.DetectionRecord
	if err := page.apply(q.Order("created_at DESC, id DESC")).Find(&recs).Error; err != nil {
		return nil, 0, apperr.Internal("records.list", err)
	}
	return recs, total, nil
}

// AllByOwner returns every record of the owner, newest first.
func (s *RecordStore) AllByOwner(ctx context.Context, ownerID uint) ([]models.DetectionRecord, error) {
	var recs []models.DetectionRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", ownerID).Order("created_at DESC, id DESC").Find(&recs).Error
	if err != nil {
		return nil, apperr.Internal("records.all", err)
	}
	return recs, nil
}

// SetThumbnail records a thumbnail path while the record is still PROCESSING.
func (s *RecordStore) SetThumbnail(ctx context.Context, id uint, path string) error {
	res := s.db.WithContext(ctx).Model(&models.DetectionRecord{}).
		Where("id = ? AND status = ?", id, models.StatusProcessing).
		Updates(map[string]any{"thumbnail_path": path, "updated_at": time.Now()})
	if res.Error != nil {
		return apperr.Internal("records.thumbnail", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotProcessing
	}
	return nil
}

// Complete moves a PROCESSING record to COMPLETED and stores its behavior rows
// in the same transaction. A record that already left PROCESSING is left
// untouched and ErrNotProcessing is returned.
func (s *RecordStore) Complete(ctx context.Context, id uint, c Completion) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner uint
		if err := tx.Model(&models.DetectionRecord{}).Select("user_id").Where("id = ?", id).Scan(&owner).Error; err != nil {
			return apperr.Internal("records.complete", err)
		}

		hasAbnormal := c.HasAbnormal
		res := tx.Model(&models.DetectionRecord{}).
			Where("id = ? AND status = ?", id, models.StatusProcessing).
			Updates(map[string]any{
				"status":            models.StatusCompleted,
				"has_abnormal":      &hasAbnormal,
				"behavior_type":     c.BehaviorType,
				"confidence":        c.Confidence,
				"visualization_url": c.VisualizationURL,
				"detection_result":  datatypes.JSON(c.Raw),
				"updated_at":        time.Now(),
			})
		if res.Error != nil {
			return apperr.Internal("records.complete", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotProcessing
		}

		if len(c.Behaviors) == 0 {
			return nil
		}
		rows := make([]models.BehaviorData, len(c.Behaviors))
		for i, b := range c.Behaviors {
			b.ID = 0
			b.RecordID = id
			b.UserID = owner
			rows[i] = b
		}
		if err := tx.Create(&rows).Error; err != nil {
			return apperr.Internal("records.complete", err)
		}
		return nil
	})
}

// Fail moves a PROCESSING record to FAILED with the given message.
func (s *RecordStore) Fail(ctx context.Context, id uint, message string) error {
	res := s.db.WithContext(ctx).Model(&models.DetectionRecord{}).
		Where("id = ? AND status = ?", id, models.StatusProcessing).
		Updates(map[string]any{
			"status":        models.StatusFailed,
			"error_message": message,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return apperr.Internal("records.fail", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotProcessing
	}
	return nil
}

// Delete removes the record and its behavior rows and returns the removed
// record so callers can clean up its files.
func (s *RecordStore) Delete(ctx context.Context, id uint) (*models.DetectionRecord, error) {
	var rec models.DetectionRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rec, id).Error; err != nil {
			return notFoundOr("records.delete", err, "detection record", id)
		}
		if err := tx.Where("record_id = ?", id).Delete(&models.BehaviorData{}).Error; err != nil {
			return apperr.Internal("records.delete", err)
		}
		if err := tx.Delete(&models.DetectionRecord{}, id).Error; err != nil {
			return apperr.Internal("records.delete", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Behaviors returns the behavior rows of a record in frame order.
func (s *RecordStore) Behaviors(ctx context.Context, recordID uint) ([]models.BehaviorData, error) {
	var rows []models.BehaviorData
	err := s.db.WithContext(ctx).Where("record_id = ?", recordID).Order("frame_number ASC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, apperr.Internal("records.behaviors", err)
	}
	return rows, nil
}

// Counts is a total/abnormal pair.
type Counts struct {
	Total    int64
	Abnormal int64
}

// CountByOwner counts the owner's records and how many were abnormal.
func (s *RecordStore) CountByOwner(ctx context.Context, ownerID uint) (Counts, error) {
	return s.counts("records.count", s.db.WithContext(ctx).Where("user_id = ?", ownerID))
}

// CountAll counts every record and how many were abnormal.
func (s *RecordStore) CountAll(ctx context.Context) (Counts, error) {
	return s.counts("records.count_all", s.db.WithContext(ctx))
}

func (s *RecordStore) counts(op string, scope *gorm.DB) (Counts, error) {
	var c Counts
	if err := scope.Session(&gorm.Session{}).Model(&models.DetectionRecord{}).Count(&c.Total).Error; err != nil {
		return Counts{}, apperr.Internal(op, err)
	}
	if err := scope.Session(&gorm.Session{}).Model(&models.DetectionRecord{}).Where("has_abnormal = ?", true).Count(&c.Abnormal).Error; err != nil {
		return Counts{}, apperr.Internal(op, err)
	}
	return c, nil
}

// DistinctOwners counts owners with at least one record.
func (s *RecordStore) DistinctOwners(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.DetectionRecord{}).Distinct("user_id").Count(&n).Error; err != nil {
		return 0, apperr.Internal("records.owners", err)
	}
	return n, nil
}

// BehaviorTypeCounts groups the owner's labelled records by behavior type.
func (s *RecordStore) BehaviorTypeCounts(ctx context.Context, ownerID uint) (map[string]int64, error) {
	var rows []struct {
		BehaviorType string
		N            int64
	}
	err := s.db.WithContext(ctx).Model(&models.DetectionRecord{}).
		Select("behavior_type, COUNT(*) AS n").
		Where("user_id = ? AND behavior_type IS NOT NULL", ownerID).
		Group("behavior_type").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal("records.behavior_types", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.BehaviorType] = r.N
	}
	return out, nil
}

// Confidences returns the confidence of every completed record of the owner.
func (s *RecordStore) Confidences(ctx context.Context, ownerID uint) ([]*float64, error) {
	var out []*float64
	err := s.db.WithContext(ctx).Model(&models.DetectionRecord{}).
		Where("user_id = ? AND status = ?", ownerID, models.StatusCompleted).
		Pluck("confidence", &out).Error
	if err != nil {
		return nil, apperr.Internal("records.confidences", err)
	}
	return out, nil
}

// Stamp is the minimum a trend bucket needs from a record.
type Stamp struct {
	CreatedAt   time.Time
	HasAbnormal *bool
}

// StampsSince lists creation times and abnormal flags of the owner's records
// created at or after since.
func (s *RecordStore) StampsSince(ctx context.Context, ownerID uint, since time.Time) ([]Stamp, error) {
	var out []Stamp
	err := s.db.WithContext(ctx).Model(&models.DetectionRecord{}).
		Select("created_at, has_abnormal").
		Where("user_id = ? AND created_at >= ?", ownerID, since).
		Scan(&out).Error
	if err != nil {
		return nil, apperr.Internal("records.stamps", err)
	}
	return out, nil
}
