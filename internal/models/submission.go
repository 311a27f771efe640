package models

import "time"

// SubmissionStatus is the stored state of a submission. The absence of a
// row is the implicit initial state.
type SubmissionStatus string

const (
	// SubmissionStatusSubmitted indicates the submission has been uploaded but not graded.
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	// SubmissionStatusGraded indicates the submission has been evaluated.
	SubmissionStatusGraded SubmissionStatus = "graded"
)

// Submission is a student's work for one assignment.
type Submission struct {
	ID           uint                   `gorm:"primaryKey" json:"id"`
	AssignmentID uint                   `gorm:"not null;uniqueIndex:idx_submissions_assignment_student" json:"assignment_id"`
	StudentID    uint                   `gorm:"not null;uniqueIndex:idx_submissions_assignment_student" json:"student_id"`
	Content      string                 `gorm:"type:text" json:"content"`
	Status       SubmissionStatus       `gorm:"size:32;not null" json:"status"`
	SubmittedAt  time.Time              `gorm:"not null" json:"submitted_at"`
	Grade        *float64               `json:"grade"`
	MaxGrade     *float64               `json:"max_grade"`
	Feedback     string                 `gorm:"type:text" json:"feedback"`
	GradedAt     *time.Time             `json:"graded_at"`
	GradedBy     *uint                  `json:"graded_by"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Assignment   *Assignment            `json:"assignment,omitempty"`
	Student      *User                  `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	Attachments  []SubmissionAttachment `gorm:"constraint:OnDelete:CASCADE" json:"attachments"`
}

// IsGraded reports whether the submission has a final grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// SubmissionAttachment is one stored file belonging to a submission.
type SubmissionAttachment struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	SubmissionID uint        `gorm:"not null;index" json:"submission_id"`
	StoreKey     string      `gorm:"size:512;not null" json:"-"`
	ExternalID   string      `gorm:"size:255" json:"-"`
	FileName     string      `gorm:"size:255;not null" json:"file_name"`
	FileSize     int64       `gorm:"not null" json:"file_size"`
	MimeType     string      `gorm:"size:128" json:"mime_type"`
	CreatedAt    time.Time   `json:"created_at"`
	Submission   *Submission `json:"-"`
}
