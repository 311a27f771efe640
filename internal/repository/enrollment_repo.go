package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/models"
)

// EnrollmentRepository answers course membership questions.
type EnrollmentRepository interface {
	IsActivelyEnrolled(ctx context.Context, studentID, courseID uint) (bool, error)
}

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository instantiates the repository.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) IsActivelyEnrolled(ctx context.Context, studentID, courseID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("student_id = ? AND course_id = ? AND status = ?", studentID, courseID, models.EnrollmentStatusActive).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
