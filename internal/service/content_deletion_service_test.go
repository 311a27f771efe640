package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/repository"
)

type deletionFixture struct {
	db          *gorm.DB
	fx          hierarchy
	resources   *fakeGateway
	submissions *fakeGateway
	activity    *memoryActivityRepo
	svc         ContentDeletionService
}

// newDeletionFixture seeds one file resource and one graded submission with
// one attachment under the lesson, with both files present in their stores.
func newDeletionFixture(t *testing.T) deletionFixture {
	t.Helper()
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)
	resources := newFakeGateway("resource")
	submissions := newFakeGateway("submission")

	resource := models.Resource{
		LessonID:    fx.lesson.ID,
		Title:       "Slides",
		ContentType: models.ResourceTypeFile,
		FileKey:     "lessons/1/slides.pdf",
		FileName:    "slides.pdf",
		Version:     1,
		Visibility:  models.VisibilityPublic,
	}
	version := models.ResourceVersion{StoreKey: resource.FileKey, FileName: "slides.pdf", FileSize: 4}
	require.NoError(t, repository.NewResourceRepository(db).Create(context.Background(), &resource, &version))
	resources.put(resource.FileKey)

	grade := 90.0
	submission := models.Submission{
		AssignmentID: fx.assignment.ID,
		StudentID:    fx.student.ID,
		Status:       models.SubmissionStatusGraded,
		SubmittedAt:  time.Now(),
		Grade:        &grade,
		Attachments: []models.SubmissionAttachment{
			{StoreKey: "submissions/1/1/answer.pdf", ExternalID: "asset-1", FileName: "answer.pdf", FileSize: 4},
		},
	}
	require.NoError(t, db.Create(&submission).Error)
	submissions.put("submissions/1/1/answer.pdf")

	activity := &memoryActivityRepo{}
	svc := NewContentDeletionService(
		repository.NewContentRepository(db),
		resources,
		submissions,
		NewActivityService(activity, testLogger()),
		4,
		testLogger(),
	)

	return deletionFixture{db: db, fx: fx, resources: resources, submissions: submissions, activity: activity, svc: svc}
}

func (f deletionFixture) rowCount(t *testing.T, model interface{}) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(model).Count(&count).Error)
	return count
}

func TestDeleteLessonRequiresConfirmation(t *testing.T) {
	f := newDeletionFixture(t)
	ctx := context.Background()

	_, err := f.svc.DeleteSubtree(ctx, "lesson", f.fx.lesson.ID, false, f.fx.adminActor())
	var confirm *ConfirmationRequiredError
	require.True(t, errors.As(err, &confirm))
	require.ErrorIs(t, err, ErrConfirmationRequired)
	require.Equal(t, 2, confirm.Count)

	require.Equal(t, int64(1), f.rowCount(t, &models.Lesson{}))
	require.Equal(t, int64(1), f.rowCount(t, &models.Submission{}))
	require.Empty(t, f.resources.deletes())
	require.Empty(t, f.submissions.deletes())

	report, err := f.svc.DeleteSubtree(ctx, "lesson", f.fx.lesson.ID, true, f.fx.adminActor())
	require.NoError(t, err)
	require.True(t, report.RelationalDeleteOK)
	require.Equal(t, 2, report.FilesAttempted)
	require.Equal(t, 2, report.FilesDeleted)
	require.Equal(t, 0, report.FilesFailed)

	for _, model := range []interface{}{
		&models.Lesson{}, &models.Resource{}, &models.ResourceVersion{},
		&models.Assignment{}, &models.Submission{}, &models.SubmissionAttachment{},
	} {
		require.Equal(t, int64(0), f.rowCount(t, model))
	}
	require.Equal(t, []string{"lessons/1/slides.pdf"}, f.resources.deletes())
	require.Equal(t, []string{"submissions/1/1/answer.pdf"}, f.submissions.deletes())
	require.Contains(t, f.activity.actions(), "content.deleted")
}

func TestDeleteSubtreeIsAuthoritativeDespiteStoreFailures(t *testing.T) {
	f := newDeletionFixture(t)
	f.submissions.failDelete["submissions/1/1/answer.pdf"] = true

	report, err := f.svc.DeleteSubtree(context.Background(), "course", f.fx.course.ID, true, f.fx.adminActor())
	require.NoError(t, err)
	require.Equal(t, 2, report.FilesAttempted)
	require.Equal(t, 1, report.FilesDeleted)
	require.Equal(t, 1, report.FilesFailed)
	require.Equal(t, report.FilesAttempted, report.FilesDeleted+report.FilesFailed)
	require.Equal(t, "submission", report.Failures[0].Store)

	for _, model := range []interface{}{
		&models.Course{}, &models.Module{}, &models.Lesson{}, &models.Enrollment{},
		&models.Resource{}, &models.Submission{}, &models.SubmissionAttachment{},
	} {
		require.Equal(t, int64(0), f.rowCount(t, model))
	}
}

func TestDeleteAssignmentWithoutSubmissionsNeedsNoForce(t *testing.T) {
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)
	svc := NewContentDeletionService(repository.NewContentRepository(db), newFakeGateway("resource"), newFakeGateway("submission"), nil, 0, testLogger())

	report, err := svc.DeleteSubtree(context.Background(), "Assignment", fx.assignment.ID, false, fx.adminActor())
	require.NoError(t, err)
	require.Equal(t, 0, report.FilesAttempted)

	var count int64
	require.NoError(t, db.Model(&models.Assignment{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestDeleteSubtreeRejectsBadInput(t *testing.T) {
	f := newDeletionFixture(t)
	ctx := context.Background()

	_, err := f.svc.DeleteSubtree(ctx, "semester", 1, true, f.fx.adminActor())
	require.ErrorIs(t, err, ErrUnsupportedContentKind)

	_, err = f.svc.DeleteSubtree(ctx, "module", 9999, true, f.fx.adminActor())
	require.ErrorIs(t, err, ErrContentNotFound)

	_, err = f.svc.DeleteSubtree(ctx, "lesson", f.fx.lesson.ID, true, f.fx.lecturerActor())
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, int64(1), f.rowCount(t, &models.Lesson{}))
}
