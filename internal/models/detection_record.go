package models

import (
	"time"

	"gorm.io/datatypes"
)

// Record states. PROCESSING is the only initial state; the other two are terminal.
const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Source kinds accepted on submission.
const (
	SourceVideo    = "VIDEO"
	SourceImage    = "IMAGE"
	SourceRealtime = "REALTIME"
)

// ValidSourceType reports whether s is one of the known source kinds.
func ValidSourceType(s string) bool {
	switch s {
	case SourceVideo, SourceImage, SourceRealtime:
		return true
	}
	return false
}

// DetectionRecord tracks one submitted detection job.
type DetectionRecord struct {
	ID               uint           `json:"id" gorm:"primaryKey"`
	UserID           uint           `json:"user_id" gorm:"index;not null"`
	SourceType       string         `json:"source_type" gorm:"size:20;not null"`
	MediaPath        *string        `json:"media_path" gorm:"size:500"`
	ThumbnailPath    *string        `json:"thumbnail_path" gorm:"size:500"`
	Status           string         `json:"status" gorm:"size:20;not null;index"`
	HasAbnormal      *bool          `json:"has_abnormal"`
	BehaviorType     *string        `json:"behavior_type" gorm:"size:50"`
	Confidence       *float64       `json:"confidence"`
	VisualizationURL *string        `json:"visualization_url" gorm:"size:500"`
	DetectionResult  datatypes.JSON `json:"detection_result,omitempty"`
	ErrorMessage     *string        `json:"error_message" gorm:"type:text"`
	CreatedAt        time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// IsTerminal reports whether the record reached COMPLETED or FAILED.
func (r *DetectionRecord) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}
