package models

import (
	"time"

	"gorm.io/datatypes"
)

// Alert levels.
const (
	LevelLow      = "LOW"
	LevelMedium   = "MEDIUM"
	LevelHigh     = "HIGH"
	LevelCritical = "CRITICAL"
)

// ValidAlertLevel reports whether s is one of the four levels.
func ValidAlertLevel(s string) bool {
	switch s {
	case LevelLow, LevelMedium, LevelHigh, LevelCritical:
		return true
	}
	return false
}

// Alert is an abnormal-behavior notification raised for an owner.
// HandledBy, HandledAt and HandleNote are written together by the handle operation.
type Alert struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	UserID       uint           `json:"user_id" gorm:"index;not null"`
	RecordID     uint           `json:"record_id" gorm:"index"` // 0 when raised outside a detection job
	AlertType    string         `json:"alert_type" gorm:"size:50;not null"`
	AlertLevel   string         `json:"alert_level" gorm:"size:20;not null"`
	Confidence   float64        `json:"confidence"`
	Description  string         `json:"description" gorm:"type:text"`
	DetailData   datatypes.JSON `json:"detail_data,omitempty"`
	SnapshotPath *string        `json:"snapshot_path" gorm:"size:500"`
	IsRead       bool           `json:"is_read" gorm:"not null;index"`
	IsHandled    bool           `json:"is_handled" gorm:"not null;index"`
	HandledBy    *string        `json:"handled_by"`
	HandledAt    *time.Time     `json:"handled_at"`
	HandleNote   *string        `json:"handle_note" gorm:"type:text"`
	CreatedAt    time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
