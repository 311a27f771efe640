package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/models"
)

// AssignmentRepository reads the assignment rules a submission is checked against.
type AssignmentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

// GetByID loads the assignment with the lesson, module and course above it
// and the course's lecturers, so callers can resolve ownership in one query.
func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	err := r.db.WithContext(ctx).
		Preload("Lesson.Module.Course.Lecturers").
		Where("assignments.id = ?", id).
		Take(&assignment).Error
	if err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}
