package models

import "time"

// Assignment carries the grading and upload policy for student work.
type Assignment struct {
	ID                  uint         `gorm:"primaryKey" json:"id"`
	LessonID            uint         `gorm:"not null;index" json:"lesson_id"`
	Title               string       `gorm:"size:255;not null" json:"title"`
	Description         string       `gorm:"type:text" json:"description"`
	DueDate             time.Time    `gorm:"not null" json:"due_date"`
	MaxPoints           float64      `gorm:"not null;default:100" json:"max_points"`
	AllowedExtensions   []string     `gorm:"type:text;serializer:json" json:"allowed_extensions"`
	MaxFileSizeBytes    int64        `gorm:"not null;default:0" json:"max_file_size_bytes"`
	MaxFiles            int          `gorm:"not null;default:0" json:"max_files"`
	AllowLateSubmission bool         `gorm:"not null;default:false" json:"allow_late_submission"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
	Lesson              *Lesson      `json:"lesson,omitempty"`
	Submissions         []Submission `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.DueDate)
}

// CourseID resolves the owning course when the lesson chain was preloaded.
func (a Assignment) CourseID() uint {
	if a.Lesson == nil || a.Lesson.Module == nil {
		return 0
	}
	return a.Lesson.Module.CourseID
}

// Course returns the preloaded owning course, if any.
func (a Assignment) Course() *Course {
	if a.Lesson == nil || a.Lesson.Module == nil {
		return nil
	}
	return a.Lesson.Module.Course
}
