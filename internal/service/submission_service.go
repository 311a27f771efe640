package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/observability"
	"github.com/noah-isme/gema-lms-api/internal/repository"
	"github.com/noah-isme/gema-lms-api/pkg/storage"
)

// SubmissionOptions configures the submission workflow.
type SubmissionOptions struct {
	DownloadTTL       time.Duration
	DeleteConcurrency int
}

// SubmissionService orchestrates the student submission state machine.
type SubmissionService interface {
	Submit(ctx context.Context, assignmentID uint, req dto.SubmitRequest, files []UploadedFile, actor ActivityActor) (dto.SubmitResponse, error)
	Context(ctx context.Context, assignmentID uint, actor ActivityActor) (dto.SubmissionContextResponse, error)
	List(ctx context.Context, filter dto.SubmissionFilter, actor ActivityActor) ([]dto.SubmissionResponse, error)
	AttachmentURL(ctx context.Context, attachmentID uint, actor ActivityActor) (dto.SignedURLResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	enrollments repository.EnrollmentRepository
	store       storage.Gateway
	validator   *validator.Validate
	activity    ActivityRecorder
	janitor     *storageJanitor
	sanitizer   *bluemonday.Policy
	opts        SubmissionOptions
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService around the submission store.
func NewSubmissionService(
	submissions repository.SubmissionRepository,
	assignments repository.AssignmentRepository,
	enrollments repository.EnrollmentRepository,
	store storage.Gateway,
	validate *validator.Validate,
	activity ActivityRecorder,
	opts SubmissionOptions,
	logger zerolog.Logger,
) SubmissionService {
	if opts.DownloadTTL <= 0 {
		opts.DownloadTTL = storage.DefaultDownloadTTL
	}

	return &submissionService{
		submissions: submissions,
		assignments: assignments,
		enrollments: enrollments,
		store:       store,
		validator:   validate,
		activity:    activity,
		janitor:     newStorageJanitor(opts.DeleteConcurrency, logger),
		sanitizer:   bluemonday.StrictPolicy(),
		opts:        opts,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-lms-api/internal/service/submission"),
		now:         time.Now,
	}
}

// Submit validates eligibility and files, uploads the files, then creates or
// updates the single submission row for the (assignment, student) pair.
// Uploads always complete before the row is written; a failed upload or a
// lost race against grading removes this call's uploads again.
func (s *submissionService) Submit(ctx context.Context, assignmentID uint, req dto.SubmitRequest, files []UploadedFile, actor ActivityActor) (dto.SubmitResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.submit", trace.WithAttributes(
		attribute.Int64("submission.assignment_id", int64(assignmentID)),
		attribute.Int64("submission.student_id", int64(actor.ID)),
		attribute.Int("submission.file_count", len(files)),
	))
	defer span.End()

	fail := func(outcome string, err error) (dto.SubmitResponse, error) {
		observability.SubmissionOutcomes().WithLabelValues(outcome).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return dto.SubmitResponse{}, err
	}

	if err := s.validator.Struct(req); err != nil {
		return fail("invalid_request", err)
	}

	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return fail("assignment_lookup_failed", err)
	}

	if err := s.ensureEnrolled(ctx, actor.ID, assignment); err != nil {
		return fail("not_enrolled", err)
	}

	now := s.now()
	isOverdue := assignment.IsPastDue(now)
	if isOverdue && !assignment.AllowLateSubmission {
		return fail("deadline_passed", ErrDeadlinePassed)
	}

	files = nonEmptyFiles(files)
	if err := PolicyForAssignment(assignment).CheckBatch(candidates(files)); err != nil {
		return fail("validation_failed", err)
	}

	existing, found, err := s.findExisting(ctx, assignmentID, actor.ID)
	if err != nil {
		return fail("submission_lookup_failed", err)
	}
	if found && existing.IsGraded() {
		return fail("already_graded", ErrAlreadyGraded)
	}

	uploaded, attachments, err := s.uploadAll(ctx, assignmentID, actor.ID, files)
	if err != nil {
		s.janitor.rollback(ctx, s.store, uploaded)
		return fail("upload_failed", err)
	}

	content := strings.TrimSpace(s.sanitizer.Sanitize(req.Content))
	maxGrade := assignment.MaxPoints

	var (
		submission models.Submission
		outcome    string
	)
	if found {
		submission, err = s.resubmit(ctx, existing, content, now, maxGrade, attachments)
		outcome = "resubmitted"
	} else {
		submission, outcome, err = s.createOrResubmit(ctx, assignmentID, actor.ID, content, now, maxGrade, attachments)
	}
	if err != nil {
		s.janitor.rollback(ctx, s.store, uploaded)
		if errors.Is(err, ErrAlreadyGraded) {
			return fail("already_graded", err)
		}
		return fail("persist_failed", err)
	}

	observability.SubmissionOutcomes().WithLabelValues(outcome).Inc()
	span.SetAttributes(
		attribute.Int64("submission.id", int64(submission.ID)),
		attribute.Bool("submission.overdue", isOverdue),
		attribute.String("submission.outcome", outcome),
	)

	recordActivity(ctx, s.activity, actor, models.ActivitySubmissionSubmitted, "submission", submission.ID, map[string]interface{}{
		"assignment_id": assignmentID,
		"files":         len(attachments),
		"overdue":       isOverdue,
		"outcome":       outcome,
	})

	return dto.SubmitResponse{
		Submission: dto.NewSubmissionResponse(submission),
		IsOverdue:  isOverdue,
	}, nil
}

// Context is the read-only view of an assignment from the student's side.
func (s *submissionService) Context(ctx context.Context, assignmentID uint, actor ActivityActor) (dto.SubmissionContextResponse, error) {
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return dto.SubmissionContextResponse{}, err
	}
	if err := s.ensureEnrolled(ctx, actor.ID, assignment); err != nil {
		return dto.SubmissionContextResponse{}, err
	}

	existing, found, err := s.findExisting(ctx, assignmentID, actor.ID)
	if err != nil {
		return dto.SubmissionContextResponse{}, err
	}

	isOverdue := assignment.IsPastDue(s.now())
	response := dto.SubmissionContextResponse{
		Assignment: dto.NewAssignmentResponse(assignment),
		CanSubmit:  !isOverdue || assignment.AllowLateSubmission,
		IsOverdue:  isOverdue,
	}
	if found {
		submission := dto.NewSubmissionResponse(existing)
		response.Submission = &submission
		if existing.IsGraded() {
			response.CanSubmit = false
		}
	}

	return response, nil
}

func (s *submissionService) List(ctx context.Context, filter dto.SubmissionFilter, actor ActivityActor) ([]dto.SubmissionResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	repoFilter := repository.SubmissionFilter{
		AssignmentID: filter.AssignmentID,
		StudentID:    filter.StudentID,
		Status:       filter.Status,
	}

	switch {
	case actor.IsAdmin():
	case actor.IsStaff():
		lecturerID := actor.ID
		repoFilter.LecturerID = &lecturerID
	default:
		studentID := actor.ID
		repoFilter.StudentID = &studentID
	}

	submissions, err := s.submissions.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

// AttachmentURL signs a download URL for the owner, an admin or a lecturer of the course.
func (s *submissionService) AttachmentURL(ctx context.Context, attachmentID uint, actor ActivityActor) (dto.SignedURLResponse, error) {
	attachment, err := s.submissions.GetAttachment(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SignedURLResponse{}, ErrAttachmentNotFound
		}
		return dto.SignedURLResponse{}, err
	}

	if !canReadAttachment(attachment, actor) {
		return dto.SignedURLResponse{}, ErrUnauthorized
	}

	var url string
	err = observeStorage(s.store.Name(), "sign", func() error {
		var signErr error
		url, signErr = s.store.SignedURL(ctx, attachment.StoreKey, s.opts.DownloadTTL)
		return signErr
	})
	if err != nil {
		s.logger.Warn().Err(err).Uint("attachment_id", attachmentID).Msg("failed to sign attachment download")
		return dto.SignedURLResponse{}, err
	}

	return dto.SignedURLResponse{URL: url, ExpiresAt: s.now().Add(s.opts.DownloadTTL)}, nil
}

func (s *submissionService) loadAssignment(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *submissionService) ensureEnrolled(ctx context.Context, studentID uint, assignment models.Assignment) error {
	courseID := assignment.CourseID()
	if courseID == 0 {
		return ErrNotEnrolled
	}
	enrolled, err := s.enrollments.IsActivelyEnrolled(ctx, studentID, courseID)
	if err != nil {
		return err
	}
	if !enrolled {
		return ErrNotEnrolled
	}
	return nil
}

func (s *submissionService) findExisting(ctx context.Context, assignmentID, studentID uint) (models.Submission, bool, error) {
	submission, err := s.submissions.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, false, nil
		}
		return models.Submission{}, false, err
	}
	return submission, true, nil
}

// uploadAll uploads files one at a time. On failure it returns what was
// already uploaded so the caller can remove it.
func (s *submissionService) uploadAll(ctx context.Context, assignmentID, studentID uint, files []UploadedFile) ([]storage.Object, []models.SubmissionAttachment, error) {
	uploaded := make([]storage.Object, 0, len(files))
	attachments := make([]models.SubmissionAttachment, 0, len(files))
	prefix := fmt.Sprintf("submissions/%d/%d", assignmentID, studentID)
	metadata := map[string]string{
		"assignment_id": fmt.Sprint(assignmentID),
		"student_id":    fmt.Sprint(studentID),
	}

	for _, file := range files {
		object, mimeType, err := uploadFile(ctx, s.store, file, prefix, metadata)
		if err != nil {
			s.logger.Warn().Err(err).
				Uint("assignment_id", assignmentID).
				Uint("student_id", studentID).
				Str("file", file.Name).
				Msg("submission upload failed")
			return uploaded, nil, err
		}
		uploaded = append(uploaded, object)
		attachments = append(attachments, models.SubmissionAttachment{
			StoreKey:   object.Key,
			ExternalID: object.ExternalID,
			FileName:   storage.SanitizeName(file.Name),
			FileSize:   object.Size,
			MimeType:   mimeType,
		})
	}

	return uploaded, attachments, nil
}

// createOrResubmit inserts the first submission. When a concurrent call won
// the insert, the winner's row is updated instead.
func (s *submissionService) createOrResubmit(ctx context.Context, assignmentID, studentID uint, content string, now time.Time, maxGrade float64, attachments []models.SubmissionAttachment) (models.Submission, string, error) {
	grade := maxGrade
	submission := models.Submission{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Content:      content,
		Status:       models.SubmissionStatusSubmitted,
		SubmittedAt:  now,
		MaxGrade:     &grade,
		Attachments:  cloneAttachments(attachments),
	}

	err := s.submissions.Create(ctx, &submission)
	if err == nil {
		// The row is committed; a failed reload only loses preloaded fields.
		created, readErr := s.submissions.GetByID(ctx, submission.ID)
		if readErr != nil {
			s.logger.Warn().Err(readErr).
				Uint("submission_id", submission.ID).
				Msg("failed to reload created submission")
			return submission, "created", nil
		}
		return created, "created", nil
	}
	if !errors.Is(err, repository.ErrDuplicateSubmission) {
		return models.Submission{}, "", err
	}

	s.logger.Info().
		Uint("assignment_id", assignmentID).
		Uint("student_id", studentID).
		Msg("concurrent first submission detected, continuing as resubmission")

	winner, found, err := s.findExisting(ctx, assignmentID, studentID)
	if err != nil {
		return models.Submission{}, "", err
	}
	if !found {
		return models.Submission{}, "", ErrSubmissionConflict
	}
	if winner.IsGraded() {
		return models.Submission{}, "", ErrAlreadyGraded
	}

	updated, err := s.resubmit(ctx, winner, content, now, maxGrade, attachments)
	return updated, "resubmitted", err
}

func (s *submissionService) resubmit(ctx context.Context, existing models.Submission, content string, now time.Time, maxGrade float64, attachments []models.SubmissionAttachment) (models.Submission, error) {
	grade := maxGrade
	existing.Content = content
	existing.SubmittedAt = now
	existing.MaxGrade = &grade

	if err := s.submissions.Resubmit(ctx, &existing, cloneAttachments(attachments)); err != nil {
		if errors.Is(err, repository.ErrSubmissionLocked) {
			return models.Submission{}, ErrAlreadyGraded
		}
		return models.Submission{}, err
	}

	updated, err := s.submissions.GetByID(ctx, existing.ID)
	if err != nil {
		return models.Submission{}, err
	}
	return updated, nil
}

func cloneAttachments(attachments []models.SubmissionAttachment) []models.SubmissionAttachment {
	out := make([]models.SubmissionAttachment, len(attachments))
	copy(out, attachments)
	return out
}

func canReadAttachment(attachment models.SubmissionAttachment, actor ActivityActor) bool {
	if actor.IsAdmin() {
		return true
	}
	submission := attachment.Submission
	if submission == nil {
		return false
	}
	if submission.StudentID == actor.ID && !actor.IsStaff() {
		return true
	}
	if actor.IsStaff() && submission.Assignment != nil {
		course := submission.Assignment.Course()
		return course != nil && course.HasLecturer(actor.ID)
	}
	return false
}
