package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-lms-api/internal/models"
)

func TestSubmissionRepositoryCreateRejectsSecondRowForPair(t *testing.T) {
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	first := models.Submission{AssignmentID: fx.assignment.ID, StudentID: fx.student.ID, Status: models.SubmissionStatusSubmitted, SubmittedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, &first))

	second := models.Submission{AssignmentID: fx.assignment.ID, StudentID: fx.student.ID, Status: models.SubmissionStatusSubmitted, SubmittedAt: time.Now()}
	require.ErrorIs(t, repo.Create(ctx, &second), ErrDuplicateSubmission)

	var count int64
	require.NoError(t, db.Model(&models.Submission{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestSubmissionRepositoryResubmitAppendsAttachmentsAndClearsGrade(t *testing.T) {
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	existing := seedSubmission(t, db, fx.assignment.ID, fx.student.ID, models.SubmissionStatusSubmitted, "sub/a.pdf")
	grade := 40.0
	require.NoError(t, db.Model(&models.Submission{}).Where("id = ?", existing.ID).Update("grade", grade).Error)

	existing.Content = "second attempt"
	existing.SubmittedAt = time.Now()
	err := repo.Resubmit(ctx, &existing, []models.SubmissionAttachment{{StoreKey: "sub/b.pdf", FileName: "b.pdf", FileSize: 3}})
	require.NoError(t, err)

	reloaded, err := repo.GetByAssignmentAndStudent(ctx, fx.assignment.ID, fx.student.ID)
	require.NoError(t, err)
	require.Equal(t, "second attempt", reloaded.Content)
	require.Nil(t, reloaded.Grade)
	require.Len(t, reloaded.Attachments, 2)
	require.Equal(t, "sub/a.pdf", reloaded.Attachments[0].StoreKey)
	require.Equal(t, "sub/b.pdf", reloaded.Attachments[1].StoreKey)
}

func TestSubmissionRepositoryResubmitRefusesGradedRow(t *testing.T) {
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)
	repo := NewSubmissionRepository(db)

	graded := seedSubmission(t, db, fx.assignment.ID, fx.student.ID, models.SubmissionStatusGraded, "sub/a.pdf")

	err := repo.Resubmit(context.Background(), &graded, []models.SubmissionAttachment{{StoreKey: "sub/b.pdf", FileName: "b.pdf"}})
	require.ErrorIs(t, err, ErrSubmissionLocked)

	var attachments int64
	require.NoError(t, db.Model(&models.SubmissionAttachment{}).Count(&attachments).Error)
	require.Equal(t, int64(1), attachments)
}

func TestSubmissionRepositoryMarkGradedOnlyOnce(t *testing.T) {
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	submission := seedSubmission(t, db, fx.assignment.ID, fx.student.ID, models.SubmissionStatusSubmitted)
	update := GradeUpdate{Grade: 85, Feedback: "Good", GradedAt: time.Now(), GradedBy: fx.lecturer.ID}

	require.NoError(t, repo.MarkGraded(ctx, submission.ID, update))
	require.ErrorIs(t, repo.MarkGraded(ctx, submission.ID, update), ErrSubmissionLocked)

	graded, err := repo.GetForGrading(ctx, submission.ID)
	require.NoError(t, err)
	require.True(t, graded.IsGraded())
	require.Equal(t, 85.0, *graded.Grade)
	require.Equal(t, fx.lecturer.ID, *graded.GradedBy)
	require.Equal(t, fx.course.ID, graded.Assignment.CourseID())
	require.True(t, graded.Assignment.Course().HasLecturer(fx.lecturer.ID))
}

func TestSubmissionRepositoryListFiltersByLecturer(t *testing.T) {
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	seedSubmission(t, db, fx.assignment.ID, fx.student.ID, models.SubmissionStatusSubmitted)

	mine, err := repo.List(ctx, SubmissionFilter{LecturerID: &fx.lecturer.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	stranger := fx.student.ID
	none, err := repo.List(ctx, SubmissionFilter{LecturerID: &stranger})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestEnrollmentRepositoryIgnoresDroppedEnrollments(t *testing.T) {
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)
	repo := NewEnrollmentRepository(db)
	ctx := context.Background()

	active, err := repo.IsActivelyEnrolled(ctx, fx.student.ID, fx.course.ID)
	require.NoError(t, err)
	require.True(t, active)

	require.NoError(t, db.Model(&models.Enrollment{}).
		Where("student_id = ?", fx.student.ID).
		Update("status", models.EnrollmentStatusDropped).Error)

	active, err = repo.IsActivelyEnrolled(ctx, fx.student.ID, fx.course.ID)
	require.NoError(t, err)
	require.False(t, active)
}
