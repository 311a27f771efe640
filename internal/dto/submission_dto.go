package dto

import (
	"time"

	"github.com/noah-isme/gema-lms-api/internal/models"
)

// SubmitRequest carries the text part of a submission.
type SubmitRequest struct {
	Content string `form:"content" validate:"max=20000"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	AssignmentID *uint   `query:"assignment_id"`
	StudentID    *uint   `query:"student_id"`
	Status       *string `query:"status" validate:"omitempty,oneof=submitted graded"`
}

// GradeSubmissionRequest is the grading payload.
type GradeSubmissionRequest struct {
	Grade    *float64 `json:"grade" validate:"required"`
	Feedback string   `json:"feedback" validate:"max=5000"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID           uint                 `json:"id"`
	AssignmentID uint                 `json:"assignment_id"`
	StudentID    uint                 `json:"student_id"`
	Content      string               `json:"content"`
	Status       string               `json:"status"`
	SubmittedAt  time.Time            `json:"submitted_at"`
	Grade        *float64             `json:"grade"`
	MaxGrade     *float64             `json:"max_grade"`
	Feedback     string               `json:"feedback"`
	GradedBy     *uint                `json:"graded_by"`
	GradedAt     *time.Time           `json:"graded_at"`
	Attachments  []AttachmentResponse `json:"attachments"`
	Assignment   *AssignmentLite      `json:"assignment,omitempty"`
	Student      *StudentLite         `json:"student,omitempty"`
}

// AttachmentResponse describes one submitted file.
type AttachmentResponse struct {
	ID        uint      `json:"id"`
	FileName  string    `json:"file_name"`
	FileSize  int64     `json:"file_size"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmitResponse adds the caller-side late flag to the submission.
type SubmitResponse struct {
	Submission SubmissionResponse `json:"submission"`
	IsOverdue  bool               `json:"is_overdue"`
}

// SubmissionContextResponse is the read-only view a student sees before submitting.
type SubmissionContextResponse struct {
	Assignment AssignmentResponse  `json:"assignment"`
	Submission *SubmissionResponse `json:"submission"`
	CanSubmit  bool                `json:"can_submit"`
	IsOverdue  bool                `json:"is_overdue"`
}

// AssignmentLite summarizes an assignment in submission responses.
type AssignmentLite struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	DueDate   time.Time `json:"due_date"`
	MaxPoints float64   `json:"max_points"`
}

// AssignmentResponse exposes the submission policy of an assignment.
type AssignmentResponse struct {
	ID                  uint      `json:"id"`
	LessonID            uint      `json:"lesson_id"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	DueDate             time.Time `json:"due_date"`
	MaxPoints           float64   `json:"max_points"`
	AllowedExtensions   []string  `json:"allowed_extensions"`
	MaxFileSizeBytes    int64     `json:"max_file_size_bytes"`
	MaxFiles            int       `json:"max_files"`
	AllowLateSubmission bool      `json:"allow_late_submission"`
}

// StudentLite summarizes a student without exposing full profile data.
type StudentLite struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// NewAssignmentResponse converts an Assignment model into a DTO.
func NewAssignmentResponse(model models.Assignment) AssignmentResponse {
	extensions := model.AllowedExtensions
	if extensions == nil {
		extensions = []string{}
	}
	return AssignmentResponse{
		ID:                  model.ID,
		LessonID:            model.LessonID,
		Title:               model.Title,
		Description:         model.Description,
		DueDate:             model.DueDate,
		MaxPoints:           model.MaxPoints,
		AllowedExtensions:   extensions,
		MaxFileSizeBytes:    model.MaxFileSizeBytes,
		MaxFiles:            model.MaxFiles,
		AllowLateSubmission: model.AllowLateSubmission,
	}
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		StudentID:    model.StudentID,
		Content:      model.Content,
		Status:       string(model.Status),
		SubmittedAt:  model.SubmittedAt,
		Grade:        model.Grade,
		MaxGrade:     model.MaxGrade,
		Feedback:     model.Feedback,
		GradedBy:     model.GradedBy,
		GradedAt:     model.GradedAt,
		Attachments:  make([]AttachmentResponse, 0, len(model.Attachments)),
	}

	for _, attachment := range model.Attachments {
		response.Attachments = append(response.Attachments, AttachmentResponse{
			ID:        attachment.ID,
			FileName:  attachment.FileName,
			FileSize:  attachment.FileSize,
			MimeType:  attachment.MimeType,
			CreatedAt: attachment.CreatedAt,
		})
	}

	if model.Assignment != nil {
		response.Assignment = &AssignmentLite{
			ID:        model.Assignment.ID,
			Title:     model.Assignment.Title,
			DueDate:   model.Assignment.DueDate,
			MaxPoints: model.Assignment.MaxPoints,
		}
	}

	if model.Student != nil {
		response.Student = &StudentLite{ID: model.Student.ID, Name: model.Student.Name}
	}

	return response
}

// NewSubmissionResponseSlice converts a slice of Submission models into DTOs.
func NewSubmissionResponseSlice(items []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewSubmissionResponse(item))
	}
	return responses
}
