package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/repository"
)

const defaultNotifyTimeout = 10 * time.Second

// GradingService is the only path that moves a submission to graded.
type GradingService interface {
	Grade(ctx context.Context, submissionID uint, payload dto.GradeSubmissionRequest, actor ActivityActor) (dto.SubmissionResponse, error)
}

type gradingService struct {
	repo          repository.SubmissionRepository
	validator     *validator.Validate
	activity      ActivityRecorder
	notifier      GradeNotifier
	sanitizer     *bluemonday.Policy
	logger        zerolog.Logger
	now           func() time.Time
	dispatch      func(func())
	notifyTimeout time.Duration
}

// NewGradingService constructs the grading service. notifier may be nil.
func NewGradingService(repo repository.SubmissionRepository, validator *validator.Validate, activity ActivityRecorder, notifier GradeNotifier, logger zerolog.Logger) GradingService {
	return &gradingService{
		repo:          repo,
		validator:     validator,
		activity:      activity,
		notifier:      notifier,
		sanitizer:     bluemonday.StrictPolicy(),
		logger:        logger.With().Str("component", "grading_service").Logger(),
		now:           time.Now,
		dispatch:      func(fn func()) { go fn() },
		notifyTimeout: defaultNotifyTimeout,
	}
}

func (s *gradingService) Grade(ctx context.Context, submissionID uint, payload dto.GradeSubmissionRequest, actor ActivityActor) (dto.SubmissionResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-lms-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.update")
	span.SetAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.repo.GetForGrading(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "submission_not_found")
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		span.SetStatus(codes.Error, "submission_lookup_failed")
		return dto.SubmissionResponse{}, err
	}

	if !canGrade(submission, actor) {
		span.SetStatus(codes.Error, "unauthorized")
		return dto.SubmissionResponse{}, ErrUnauthorized
	}

	grade := *payload.Grade
	maxGrade := gradeCeiling(submission)
	if grade < 0 || grade > maxGrade+1e-9 {
		span.SetStatus(codes.Error, "grade_out_of_range")
		return dto.SubmissionResponse{}, ErrGradeOutOfRange
	}

	feedback := strings.TrimSpace(s.sanitizer.Sanitize(payload.Feedback))

	if submission.IsGraded() {
		if isSameGrade(submission, grade, feedback, actor.ID) {
			span.SetAttributes(attribute.Bool("grading.idempotent", true))
			return dto.NewSubmissionResponse(submission), nil
		}
		span.SetStatus(codes.Error, "already_graded")
		return dto.SubmissionResponse{}, ErrAlreadyGraded
	}

	gradedAt := s.now()
	if err := s.repo.MarkGraded(ctx, submission.ID, repository.GradeUpdate{
		Grade:    grade,
		Feedback: feedback,
		GradedAt: gradedAt,
		GradedBy: actor.ID,
	}); err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrSubmissionLocked) {
			span.SetStatus(codes.Error, "already_graded")
			return dto.SubmissionResponse{}, ErrAlreadyGraded
		}
		span.SetStatus(codes.Error, "submission_update_failed")
		return dto.SubmissionResponse{}, err
	}

	submission.Status = models.SubmissionStatusGraded
	submission.Grade = &grade
	submission.Feedback = feedback
	submission.GradedAt = &gradedAt
	gradedBy := actor.ID
	submission.GradedBy = &gradedBy

	recordActivity(ctx, s.activity, actor, models.ActivitySubmissionGraded, "submission", submission.ID, map[string]interface{}{
		"assignment_id": submission.AssignmentID,
		"student_id":    submission.StudentID,
		"grade":         grade,
		"max_grade":     maxGrade,
	})

	s.notify(ctx, submission, maxGrade)

	span.SetAttributes(
		attribute.Float64("grading.grade", grade),
		attribute.String("grading.status", string(submission.Status)),
	)

	return dto.NewSubmissionResponse(submission), nil
}

// notify runs detached from the request; a failed notification is only logged.
func (s *gradingService) notify(ctx context.Context, submission models.Submission, maxGrade float64) {
	if s.notifier == nil {
		return
	}

	event := GradedEvent{
		SubmissionID: submission.ID,
		AssignmentID: submission.AssignmentID,
		StudentID:    submission.StudentID,
		Grade:        *submission.Grade,
		MaxGrade:     maxGrade,
		Feedback:     submission.Feedback,
		GradedAt:     *submission.GradedAt,
	}
	if submission.Assignment != nil {
		event.AssignmentTitle = submission.Assignment.Title
	}
	if submission.Student != nil {
		event.StudentEmail = submission.Student.Email
	}

	detached := context.WithoutCancel(ctx)
	s.dispatch(func() {
		notifyCtx, cancel := context.WithTimeout(detached, s.notifyTimeout)
		defer cancel()

		if err := s.notifier.NotifyGraded(notifyCtx, event); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", event.SubmissionID).Msg("graded notification failed")
		}
	})
}

func canGrade(submission models.Submission, actor ActivityActor) bool {
	if actor.IsAdmin() {
		return true
	}
	if !actor.IsStaff() || submission.Assignment == nil {
		return false
	}
	course := submission.Assignment.Course()
	return course != nil && course.HasLecturer(actor.ID)
}

func gradeCeiling(submission models.Submission) float64 {
	if submission.MaxGrade != nil {
		return *submission.MaxGrade
	}
	if submission.Assignment != nil {
		return submission.Assignment.MaxPoints
	}
	return 0
}

func isSameGrade(submission models.Submission, grade float64, feedback string, graderID uint) bool {
	if submission.Grade == nil || submission.GradedBy == nil {
		return false
	}
	return math.Abs(*submission.Grade-grade) < 1e-6 &&
		strings.TrimSpace(submission.Feedback) == feedback &&
		*submission.GradedBy == graderID
}
