package models

import (
	"time"

	"gorm.io/datatypes"
)

// DetectionZone is a region of a camera frame with its own alerting policy.
type DetectionZone struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	UserID      uint           `json:"user_id" gorm:"index;not null"`
	ZoneName    string         `json:"zone_name" gorm:"size:100;not null"`
	ZoneType    string         `json:"zone_type" gorm:"size:50"` // RESTRICTED, MONITORED, SAFE
	Coordinates datatypes.JSON `json:"coordinates"`             // [[x1,y1],[x2,y2],...]
	Shape       string         `json:"shape" gorm:"size:20"`    // RECTANGLE, POLYGON, CIRCLE
	IsActive    bool           `json:"is_active" gorm:"not null;index"`
	EnableAlert bool           `json:"enable_alert" gorm:"not null"`
	AlertLevel  string         `json:"alert_level" gorm:"size:20"`
	Description string         `json:"description" gorm:"type:text"`
	CameraID    string         `json:"camera_id" gorm:"size:500"`
	ImageWidth  *int           `json:"image_width"`
	ImageHeight *int           `json:"image_height"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
