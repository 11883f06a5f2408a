package models

import (
	"time"

	"gorm.io/datatypes"
)

// BehaviorData is one abnormal observation inside a completed detection,
// usually a single video frame.
type BehaviorData struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	RecordID       uint           `json:"record_id" gorm:"index;not null"` // Foreign key to DetectionRecord.ID
	UserID         uint           `json:"user_id" gorm:"index;not null"`
	BehaviorType   string         `json:"behavior_type" gorm:"size:50;not null"`
	Confidence     float64        `json:"confidence"`
	FrameNumber    *int           `json:"frame_number"`
	Timestamp      *float64       `json:"timestamp"` // seconds into the video
	BoundingBox    datatypes.JSON `json:"bounding_box,omitempty"`
	Keypoints      datatypes.JSON `json:"keypoints,omitempty"`
	AdditionalInfo datatypes.JSON `json:"additional_info,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
