package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/repository"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []GradedEvent
	err    error
}

func (n *recordingNotifier) NotifyGraded(ctx context.Context, event GradedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

type gradingFixture struct {
	fx         hierarchy
	submission models.Submission
	notifier   *recordingNotifier
	activity   *memoryActivityRepo
	svc        *gradingService
}

func newGradingFixture(t *testing.T) gradingFixture {
	t.Helper()
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)

	maxGrade := 100.0
	submission := models.Submission{
		AssignmentID: fx.assignment.ID,
		StudentID:    fx.student.ID,
		Status:       models.SubmissionStatusSubmitted,
		SubmittedAt:  time.Now(),
		MaxGrade:     &maxGrade,
	}
	require.NoError(t, db.Create(&submission).Error)

	notifier := &recordingNotifier{}
	activity := &memoryActivityRepo{}
	svc := NewGradingService(
		repository.NewSubmissionRepository(db),
		testValidator(),
		NewActivityService(activity, testLogger()),
		notifier,
		testLogger(),
	).(*gradingService)
	svc.dispatch = func(fn func()) { fn() }

	return gradingFixture{fx: fx, submission: submission, notifier: notifier, activity: activity, svc: svc}
}

func gradeRequest(grade float64, feedback string) dto.GradeSubmissionRequest {
	return dto.GradeSubmissionRequest{Grade: &grade, Feedback: feedback}
}

func TestGradeTransitionsToGradedAndNotifies(t *testing.T) {
	f := newGradingFixture(t)

	result, err := f.svc.Grade(context.Background(), f.submission.ID, gradeRequest(85, "Well <i>done</i>"), f.fx.lecturerActor())
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusGraded), result.Status)
	require.Equal(t, 85.0, *result.Grade)
	require.Equal(t, "Well done", result.Feedback)
	require.Equal(t, f.fx.lecturer.ID, *result.GradedBy)

	require.Len(t, f.notifier.events, 1)
	event := f.notifier.events[0]
	require.Equal(t, f.fx.student.Email, event.StudentEmail)
	require.Equal(t, "Build a form", event.AssignmentTitle)
	require.Equal(t, 100.0, event.MaxGrade)
	require.Contains(t, f.activity.actions(), "submission.graded")
}

func TestGradeOutOfRange(t *testing.T) {
	f := newGradingFixture(t)

	_, err := f.svc.Grade(context.Background(), f.submission.ID, gradeRequest(100.5, ""), f.fx.adminActor())
	require.ErrorIs(t, err, ErrGradeOutOfRange)

	_, err = f.svc.Grade(context.Background(), f.submission.ID, gradeRequest(-1, ""), f.fx.adminActor())
	require.ErrorIs(t, err, ErrGradeOutOfRange)

	_, err = f.svc.Grade(context.Background(), f.submission.ID, gradeRequest(100, ""), f.fx.adminActor())
	require.NoError(t, err)
}

func TestGradeRequiresCourseLecturerOrAdmin(t *testing.T) {
	f := newGradingFixture(t)

	_, err := f.svc.Grade(context.Background(), f.submission.ID, gradeRequest(50, ""), f.fx.outsiderActor())
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.Grade(context.Background(), f.submission.ID, gradeRequest(50, ""), f.fx.studentActor())
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Empty(t, f.notifier.events)
}

func TestRegradeIsIdempotentOnlyForIdenticalGrade(t *testing.T) {
	f := newGradingFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grade(ctx, f.submission.ID, gradeRequest(70, "ok"), f.fx.lecturerActor())
	require.NoError(t, err)

	again, err := f.svc.Grade(ctx, f.submission.ID, gradeRequest(70, "ok"), f.fx.lecturerActor())
	require.NoError(t, err)
	require.Equal(t, 70.0, *again.Grade)
	require.Len(t, f.notifier.events, 1)

	_, err = f.svc.Grade(ctx, f.submission.ID, gradeRequest(75, "ok"), f.fx.lecturerActor())
	require.ErrorIs(t, err, ErrAlreadyGraded)

	_, err = f.svc.Grade(ctx, f.submission.ID, gradeRequest(70, "ok"), f.fx.adminActor())
	require.ErrorIs(t, err, ErrAlreadyGraded)
}

func TestGradeSurvivesNotificationFailure(t *testing.T) {
	f := newGradingFixture(t)
	f.notifier.err = errors.New("broker down")

	result, err := f.svc.Grade(context.Background(), f.submission.ID, gradeRequest(60, ""), f.fx.adminActor())
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusGraded), result.Status)
}

func TestGradeUnknownSubmission(t *testing.T) {
	f := newGradingFixture(t)

	_, err := f.svc.Grade(context.Background(), 9999, gradeRequest(10, ""), f.fx.adminActor())
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestGradeRequiresValue(t *testing.T) {
	f := newGradingFixture(t)

	_, err := f.svc.Grade(context.Background(), f.submission.ID, dto.GradeSubmissionRequest{}, f.fx.adminActor())
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrGradeOutOfRange))
}
