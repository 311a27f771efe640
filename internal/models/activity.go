package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audited actions.
const (
	ActivitySubmissionSubmitted  = "submission.submitted"
	ActivitySubmissionGraded     = "submission.graded"
	ActivityResourceCreated      = "resource.created"
	ActivityResourceVersionAdded = "resource.version_added"
	ActivityResourceDeleted      = "resource.deleted"
	ActivityContentDeleted       = "content.deleted"
)

// IsKnownActivity reports whether action is one of the audited actions.
func IsKnownActivity(action string) bool {
	switch action {
	case ActivitySubmissionSubmitted, ActivitySubmissionGraded,
		ActivityResourceCreated, ActivityResourceVersionAdded, ActivityResourceDeleted,
		ActivityContentDeleted:
		return true
	}
	return false
}

// ActivityLog is the audit trail of mutating operations on submissions,
// grades, resources and content.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    uint              `gorm:"not null;index" json:"actor_id"`
	ActorRole  string            `gorm:"size:32;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	EntityType string            `gorm:"size:64;not null;index:idx_activity_entity" json:"entity_type"`
	EntityID   *uint             `gorm:"index:idx_activity_entity" json:"entity_id"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

// AllModels lists every model migrated at startup.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Course{},
		&Module{},
		&Lesson{},
		&Enrollment{},
		&Resource{},
		&ResourceVersion{},
		&Assignment{},
		&Submission{},
		&SubmissionAttachment{},
		&ActivityLog{},
		&Notification{},
	}
}
