package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationTypeSubmissionGraded is sent to a student when a grade is recorded.
const NotificationTypeSubmissionGraded = "submission.graded"

// Notification is an in-app message targeted to a single user.
type Notification struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    uint              `gorm:"not null;index" json:"user_id"`
	Type      string            `gorm:"size:64;not null" json:"type"`
	Message   string            `gorm:"type:text" json:"message"`
	Payload   datatypes.JSONMap `gorm:"type:json" json:"payload"`
	Read      bool              `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
