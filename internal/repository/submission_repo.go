package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/models"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	AssignmentID *uint
	StudentID    *uint
	Status       *string
	LecturerID   *uint
}

// GradeUpdate carries the fields written when a submission is graded.
type GradeUpdate struct {
	Grade    float64
	Feedback string
	GradedAt time.Time
	GradedBy uint
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetForGrading(ctx context.Context, id uint) (models.Submission, error)
	GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error)
	GetAttachment(ctx context.Context, id uint) (models.SubmissionAttachment, error)
	Create(ctx context.Context, submission *models.Submission) error
	Resubmit(ctx context.Context, submission *models.Submission, attachments []models.SubmissionAttachment) error
	MarkGraded(ctx context.Context, id uint, update GradeUpdate) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Assignment").
		Preload("Student").
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		})
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.baseQuery(ctx)

	if filter.AssignmentID != nil {
		query = query.Where("submissions.assignment_id = ?", *filter.AssignmentID)
	}

	if filter.StudentID != nil {
		query = query.Where("submissions.student_id = ?", *filter.StudentID)
	}

	if filter.Status != nil {
		query = query.Where("submissions.status = ?", *filter.Status)
	}

	if filter.LecturerID != nil {
		query = query.
			Joins("JOIN assignments ON assignments.id = submissions.assignment_id").
			Joins("JOIN lessons ON lessons.id = assignments.lesson_id").
			Joins("JOIN modules ON modules.id = lessons.module_id").
			Joins("JOIN course_lecturers ON course_lecturers.course_id = modules.course_id").
			Where("course_lecturers.user_id = ?", *filter.LecturerID)
	}

	var submissions []models.Submission
	if err := query.Order("submissions.submitted_at DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

// GetForGrading loads the submission with the course lecturers needed for authorization.
func (r *submissionRepository) GetForGrading(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Preload("Assignment.Lesson.Module.Course.Lecturers").
		Preload("Student").
		Preload("Attachments").
		First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("student_id = ?", studentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetAttachment(ctx context.Context, id uint) (models.SubmissionAttachment, error) {
	var attachment models.SubmissionAttachment
	if err := r.db.WithContext(ctx).
		Preload("Submission.Assignment.Lesson.Module.Course.Lecturers").
		First(&attachment, id).Error; err != nil {
		return models.SubmissionAttachment{}, err
	}

	return attachment, nil
}

// Create inserts the submission with its attachments. The unique index on
// (assignment_id, student_id) decides concurrent first submissions.
func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if err := r.db.WithContext(ctx).Create(submission).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateSubmission
		}
		return err
	}
	return nil
}

// Resubmit replaces the content, resets the grade and appends attachments,
// provided the row is still in the submitted state.
func (r *submissionRepository) Resubmit(ctx context.Context, submission *models.Submission, attachments []models.SubmissionAttachment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Submission{}).
			Where("id = ? AND status = ?", submission.ID, models.SubmissionStatusSubmitted).
			Updates(map[string]interface{}{
				"content":      submission.Content,
				"status":       models.SubmissionStatusSubmitted,
				"submitted_at": submission.SubmittedAt,
				"max_grade":    submission.MaxGrade,
				"grade":        nil,
				"feedback":     "",
				"graded_at":    nil,
				"graded_by":    nil,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrSubmissionLocked
		}

		for i := range attachments {
			attachments[i].SubmissionID = submission.ID
		}
		if len(attachments) > 0 {
			if err := tx.Create(&attachments).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkGraded transitions a submitted row to graded.
func (r *submissionRepository) MarkGraded(ctx context.Context, id uint, update GradeUpdate) error {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.SubmissionStatusSubmitted).
		Updates(map[string]interface{}{
			"status":    models.SubmissionStatusGraded,
			"grade":     update.Grade,
			"feedback":  update.Feedback,
			"graded_at": update.GradedAt,
			"graded_by": update.GradedBy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSubmissionLocked
	}
	return nil
}
