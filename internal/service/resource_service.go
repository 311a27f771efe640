package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/repository"
	"github.com/noah-isme/gema-lms-api/pkg/storage"
)

// ResourceOptions configures the resource workflow.
type ResourceOptions struct {
	Policy            FilePolicy
	DownloadTTL       time.Duration
	UploadTTL         time.Duration
	DeleteConcurrency int
}

// ResourceService manages versioned lesson resources in the resource store.
type ResourceService interface {
	Create(ctx context.Context, lessonID uint, req dto.ResourceCreateRequest, file *UploadedFile, actor ActivityActor) (dto.ResourceResponse, error)
	AddVersion(ctx context.Context, resourceID uint, file UploadedFile, actor ActivityActor) (dto.ResourceResponse, error)
	AddUploadedVersion(ctx context.Context, resourceID uint, req dto.ResourceVersionRequest, actor ActivityActor) (dto.ResourceResponse, error)
	Versions(ctx context.Context, resourceID uint, actor ActivityActor) ([]dto.ResourceVersionResponse, error)
	Delete(ctx context.Context, resourceID uint, actor ActivityActor) (dto.DeletionReport, error)
	DownloadURL(ctx context.Context, resourceID uint, version *int, actor ActivityActor) (dto.SignedURLResponse, error)
	UploadURL(ctx context.Context, lessonID uint, req dto.UploadURLRequest, actor ActivityActor) (dto.SignedURLResponse, error)
}

type resourceService struct {
	repo        repository.ResourceRepository
	content     repository.ContentRepository
	enrollments repository.EnrollmentRepository
	store       storage.Gateway
	validator   *validator.Validate
	activity    ActivityRecorder
	janitor     *storageJanitor
	opts        ResourceOptions
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewResourceService constructs the resource service around the resource store.
func NewResourceService(
	repo repository.ResourceRepository,
	content repository.ContentRepository,
	enrollments repository.EnrollmentRepository,
	store storage.Gateway,
	validate *validator.Validate,
	activity ActivityRecorder,
	opts ResourceOptions,
	logger zerolog.Logger,
) ResourceService {
	if opts.DownloadTTL <= 0 {
		opts.DownloadTTL = storage.DefaultDownloadTTL
	}
	if opts.UploadTTL <= 0 {
		opts.UploadTTL = storage.DefaultUploadTTL
	}

	return &resourceService{
		repo:        repo,
		content:     content,
		enrollments: enrollments,
		store:       store,
		validator:   validate,
		activity:    activity,
		janitor:     newStorageJanitor(opts.DeleteConcurrency, logger),
		opts:        opts,
		logger:      logger.With().Str("component", "resource_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-lms-api/internal/service/resource"),
		now:         time.Now,
	}
}

func (s *resourceService) Create(ctx context.Context, lessonID uint, req dto.ResourceCreateRequest, file *UploadedFile, actor ActivityActor) (dto.ResourceResponse, error) {
	ctx, span := s.tracer.Start(ctx, "resource.create", trace.WithAttributes(
		attribute.Int64("resource.lesson_id", int64(lessonID)),
		attribute.String("resource.content_type", req.ContentType),
	))
	defer span.End()

	req.Visibility = strings.ToLower(strings.TrimSpace(req.Visibility))
	if req.Visibility == "" {
		req.Visibility = models.VisibilityPublic
	}
	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.ResourceResponse{}, err
	}

	revealAt, err := parseRevealAt(req)
	if err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.ResourceResponse{}, err
	}

	if _, err := s.authorizeLesson(ctx, lessonID, actor); err != nil {
		span.SetStatus(codes.Error, "lesson_access_denied")
		return dto.ResourceResponse{}, err
	}

	downloadable := true
	if req.Downloadable != nil {
		downloadable = *req.Downloadable
	}

	resource := models.Resource{
		LessonID:     lessonID,
		Title:        strings.TrimSpace(req.Title),
		ContentType:  req.ContentType,
		ExternalURL:  strings.TrimSpace(req.ExternalURL),
		Body:         req.Body,
		Visibility:   req.Visibility,
		RevealAt:     revealAt,
		Downloadable: downloadable,
		Position:     req.Position,
		UploadedBy:   actor.ID,
	}

	if !resource.IsFile() {
		if err := s.repo.Create(ctx, &resource, nil); err != nil {
			span.RecordError(err)
			return dto.ResourceResponse{}, err
		}
		s.recordResource(ctx, actor, models.ActivityResourceCreated, resource, nil)
		return dto.NewResourceResponse(resource), nil
	}

	var version models.ResourceVersion
	switch {
	case file != nil && file.Size > 0:
		version, err = s.storeFile(ctx, lessonID, *file, actor)
	case strings.TrimSpace(req.UploadKey) != "":
		version, err = s.adoptUpload(ctx, lessonID, req.UploadKey, actor)
	default:
		span.SetStatus(codes.Error, "file_required")
		return dto.ResourceResponse{}, ErrFileRequired
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload_failed")
		return dto.ResourceResponse{}, err
	}

	resource.FileKey = version.StoreKey
	resource.FileName = version.FileName
	resource.FileSize = version.FileSize
	resource.MimeType = version.MimeType
	resource.Version = 1

	if err := s.repo.Create(ctx, &resource, &version); err != nil {
		span.RecordError(err)
		s.janitor.rollback(ctx, s.store, []storage.Object{{Key: version.StoreKey}})
		return dto.ResourceResponse{}, err
	}

	s.recordResource(ctx, actor, models.ActivityResourceCreated, resource, map[string]interface{}{"version": 1})
	span.SetStatus(codes.Ok, "created")
	return dto.NewResourceResponse(resource), nil
}

func (s *resourceService) AddVersion(ctx context.Context, resourceID uint, file UploadedFile, actor ActivityActor) (dto.ResourceResponse, error) {
	if file.Size <= 0 {
		return dto.ResourceResponse{}, ErrFileRequired
	}
	return s.appendVersion(ctx, resourceID, actor, func(lessonID uint) (models.ResourceVersion, error) {
		return s.storeFile(ctx, lessonID, file, actor)
	})
}

// AddUploadedVersion appends an object the client already PUT through an
// issued upload URL.
func (s *resourceService) AddUploadedVersion(ctx context.Context, resourceID uint, req dto.ResourceVersionRequest, actor ActivityActor) (dto.ResourceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ResourceResponse{}, err
	}
	return s.appendVersion(ctx, resourceID, actor, func(lessonID uint) (models.ResourceVersion, error) {
		return s.adoptUpload(ctx, lessonID, req.UploadKey, actor)
	})
}

func (s *resourceService) appendVersion(ctx context.Context, resourceID uint, actor ActivityActor, produce func(lessonID uint) (models.ResourceVersion, error)) (dto.ResourceResponse, error) {
	ctx, span := s.tracer.Start(ctx, "resource.add_version", trace.WithAttributes(
		attribute.Int64("resource.id", int64(resourceID)),
	))
	defer span.End()

	resource, err := s.loadResource(ctx, resourceID)
	if err != nil {
		return dto.ResourceResponse{}, err
	}
	if err := s.authorizeCourse(lessonCourse(resource.Lesson), actor); err != nil {
		return dto.ResourceResponse{}, err
	}
	if !resource.IsFile() {
		return dto.ResourceResponse{}, ErrNotFileResource
	}

	version, err := produce(resource.LessonID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload_failed")
		return dto.ResourceResponse{}, err
	}

	updated, err := s.repo.AppendVersion(ctx, resourceID, &version)
	if err != nil {
		span.RecordError(err)
		s.janitor.rollback(ctx, s.store, []storage.Object{{Key: version.StoreKey}})
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return dto.ResourceResponse{}, ErrResourceNotFound
		case errors.Is(err, repository.ErrResourceNotFile):
			return dto.ResourceResponse{}, ErrNotFileResource
		}
		return dto.ResourceResponse{}, err
	}

	span.SetAttributes(attribute.Int("resource.version", updated.Version))
	s.recordResource(ctx, actor, models.ActivityResourceVersionAdded, updated, map[string]interface{}{"version": updated.Version})
	return dto.NewResourceResponse(updated), nil
}

func (s *resourceService) Versions(ctx context.Context, resourceID uint, actor ActivityActor) ([]dto.ResourceVersionResponse, error) {
	resource, err := s.loadResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeCourse(lessonCourse(resource.Lesson), actor); err != nil {
		return nil, err
	}

	versions, err := s.repo.ListVersions(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return dto.NewResourceVersionResponses(versions), nil
}

// Delete removes the resource rows first, then every distinct key it ever
// referenced from the resource store.
func (s *resourceService) Delete(ctx context.Context, resourceID uint, actor ActivityActor) (dto.DeletionReport, error) {
	ctx, span := s.tracer.Start(ctx, "resource.delete", trace.WithAttributes(
		attribute.Int64("resource.id", int64(resourceID)),
	))
	defer span.End()

	resource, err := s.loadResource(ctx, resourceID)
	if err != nil {
		return dto.DeletionReport{}, err
	}
	if err := s.authorizeCourse(lessonCourse(resource.Lesson), actor); err != nil {
		return dto.DeletionReport{}, err
	}

	refs, err := s.repo.Delete(ctx, resourceID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.DeletionReport{}, ErrResourceNotFound
		}
		return dto.DeletionReport{}, err
	}

	report := s.janitor.purge(ctx, cleanupBatch{gateway: s.store, refs: refs})
	span.SetAttributes(
		attribute.Int("deletion.files_attempted", report.FilesAttempted),
		attribute.Int("deletion.files_failed", report.FilesFailed),
	)

	s.recordResource(ctx, actor, models.ActivityResourceDeleted, resource, map[string]interface{}{
		"files_attempted": report.FilesAttempted,
		"files_failed":    report.FilesFailed,
	})
	return report, nil
}

func (s *resourceService) DownloadURL(ctx context.Context, resourceID uint, version *int, actor ActivityActor) (dto.SignedURLResponse, error) {
	resource, err := s.loadResource(ctx, resourceID)
	if err != nil {
		return dto.SignedURLResponse{}, err
	}
	if !resource.IsFile() {
		return dto.SignedURLResponse{}, ErrNotFileResource
	}

	course := lessonCourse(resource.Lesson)
	if err := s.authorizeCourse(course, actor); err != nil {
		if actor.IsStaff() || course == nil {
			return dto.SignedURLResponse{}, err
		}
		enrolled, enrollErr := s.enrollments.IsActivelyEnrolled(ctx, actor.ID, course.ID)
		if enrollErr != nil {
			return dto.SignedURLResponse{}, enrollErr
		}
		if !enrolled {
			return dto.SignedURLResponse{}, ErrNotEnrolled
		}
		if !resource.Downloadable || !isVisible(resource, s.now()) {
			return dto.SignedURLResponse{}, ErrNotDownloadable
		}
	}

	key := resource.FileKey
	if version != nil && *version != resource.Version {
		if !actor.IsStaff() {
			return dto.SignedURLResponse{}, ErrUnauthorized
		}
		entry, err := s.repo.GetVersion(ctx, resourceID, *version)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.SignedURLResponse{}, ErrVersionNotFound
			}
			return dto.SignedURLResponse{}, err
		}
		key = entry.StoreKey
	}

	var url string
	err = observeStorage(s.store.Name(), "sign", func() error {
		var signErr error
		url, signErr = s.store.SignedURL(ctx, key, s.opts.DownloadTTL)
		return signErr
	})
	if err != nil {
		s.logger.Warn().Err(err).Uint("resource_id", resourceID).Msg("failed to sign resource download")
		return dto.SignedURLResponse{}, err
	}

	return dto.SignedURLResponse{URL: url, ExpiresAt: s.now().Add(s.opts.DownloadTTL)}, nil
}

// UploadURL issues a short-lived URL a client can PUT a resource file to. The
// returned key is attached through Create or AddUploadedVersion, which check
// the stored object again.
func (s *resourceService) UploadURL(ctx context.Context, lessonID uint, req dto.UploadURLRequest, actor ActivityActor) (dto.SignedURLResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SignedURLResponse{}, err
	}
	if _, err := s.authorizeLesson(ctx, lessonID, actor); err != nil {
		return dto.SignedURLResponse{}, err
	}
	if err := s.opts.Policy.Check(CandidateFile{Name: req.FileName, MimeType: req.MimeType, Size: req.Size}); err != nil {
		return dto.SignedURLResponse{}, err
	}

	signer, ok := s.store.(storage.DirectUploader)
	if !ok {
		return dto.SignedURLResponse{}, ErrDirectUploadUnsupported
	}

	key := storage.BuildKey(lessonPrefix(lessonID), req.FileName)
	var url string
	err := observeStorage(s.store.Name(), "sign_upload", func() error {
		var signErr error
		url, signErr = signer.SignedUploadURL(ctx, key, req.MimeType, s.opts.UploadTTL)
		return signErr
	})
	if err != nil {
		s.logger.Warn().Err(err).Uint("lesson_id", lessonID).Msg("failed to sign resource upload")
		return dto.SignedURLResponse{}, err
	}

	return dto.SignedURLResponse{URL: url, Key: key, ExpiresAt: s.now().Add(s.opts.UploadTTL)}, nil
}

// storeFile validates and uploads a file, returning the unsaved version row.
func (s *resourceService) storeFile(ctx context.Context, lessonID uint, file UploadedFile, actor ActivityActor) (models.ResourceVersion, error) {
	if err := s.opts.Policy.Check(file.candidate()); err != nil {
		return models.ResourceVersion{}, err
	}

	object, mimeType, err := uploadFile(ctx, s.store, file, lessonPrefix(lessonID), map[string]string{
		"lesson_id":   fmt.Sprint(lessonID),
		"uploaded_by": fmt.Sprint(actor.ID),
	})
	if err != nil {
		s.logger.Warn().Err(err).Uint("lesson_id", lessonID).Str("file", file.Name).Msg("resource upload failed")
		return models.ResourceVersion{}, err
	}

	return models.ResourceVersion{
		StoreKey:   object.Key,
		FileName:   storage.SanitizeName(file.Name),
		FileSize:   object.Size,
		MimeType:   mimeType,
		UploadedBy: actor.ID,
	}, nil
}

// adoptUpload turns an object written through an issued upload URL into an
// unsaved version row. The key must sit under the lesson prefix and the
// stored object, not the size the client declared, must pass the policy.
// Rejected objects are removed from the store.
func (s *resourceService) adoptUpload(ctx context.Context, lessonID uint, key string, actor ActivityActor) (models.ResourceVersion, error) {
	uploader, ok := s.store.(storage.DirectUploader)
	if !ok {
		return models.ResourceVersion{}, ErrDirectUploadUnsupported
	}

	key = strings.TrimSpace(key)
	prefix := lessonPrefix(lessonID) + "/"
	if !strings.HasPrefix(key, prefix) || strings.Contains(key, "..") || strings.Contains(key[len(prefix):], "/") {
		return models.ResourceVersion{}, ErrInvalidUploadKey
	}

	inUse, err := s.repo.StoreKeyInUse(ctx, key)
	if err != nil {
		return models.ResourceVersion{}, err
	}
	if inUse {
		return models.ResourceVersion{}, ErrUploadKeyInUse
	}

	var info storage.ObjectInfo
	err = observeStorage(s.store.Name(), "stat", func() error {
		var statErr error
		info, statErr = uploader.Stat(ctx, key)
		return statErr
	})
	if err != nil {
		if storage.IsNotFound(err) {
			return models.ResourceVersion{}, ErrUploadNotFound
		}
		return models.ResourceVersion{}, err
	}

	name := uploadedFileName(key)
	if info.Size <= 0 {
		s.janitor.rollback(ctx, s.store, []storage.Object{{Key: key}})
		return models.ResourceVersion{}, ErrFileRequired
	}
	if err := s.opts.Policy.Check(CandidateFile{Name: name, MimeType: info.ContentType, Size: info.Size}); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Int64("size", info.Size).Msg("direct upload rejected")
		s.janitor.rollback(ctx, s.store, []storage.Object{{Key: key}})
		return models.ResourceVersion{}, err
	}

	return models.ResourceVersion{
		StoreKey:   key,
		FileName:   name,
		FileSize:   info.Size,
		MimeType:   info.ContentType,
		UploadedBy: actor.ID,
	}, nil
}

func (s *resourceService) loadResource(ctx context.Context, id uint) (models.Resource, error) {
	resource, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Resource{}, ErrResourceNotFound
		}
		return models.Resource{}, err
	}
	return resource, nil
}

func (s *resourceService) authorizeLesson(ctx context.Context, lessonID uint, actor ActivityActor) (models.Lesson, error) {
	lesson, err := s.content.GetLesson(ctx, lessonID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Lesson{}, ErrLessonNotFound
		}
		return models.Lesson{}, err
	}
	if err := s.authorizeCourse(lesson.Course(), actor); err != nil {
		return models.Lesson{}, err
	}
	return lesson, nil
}

// authorizeCourse admits admins and lecturers assigned to the course.
func (s *resourceService) authorizeCourse(course *models.Course, actor ActivityActor) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.IsStaff() && course != nil && course.HasLecturer(actor.ID) {
		return nil
	}
	return ErrUnauthorized
}

func (s *resourceService) recordResource(ctx context.Context, actor ActivityActor, action string, resource models.Resource, extra map[string]interface{}) {
	metadata := map[string]interface{}{
		"lesson_id":    resource.LessonID,
		"content_type": resource.ContentType,
		"title":        resource.Title,
	}
	for key, value := range extra {
		metadata[key] = value
	}
	recordActivity(ctx, s.activity, actor, action, "resource", resource.ID, metadata)
}

// parseRevealAt checks the fields each content type depends on and parses
// the reveal time of scheduled resources.
func parseRevealAt(req dto.ResourceCreateRequest) (*time.Time, error) {
	switch req.ContentType {
	case models.ResourceTypeLink, models.ResourceTypeEmbed:
		if strings.TrimSpace(req.ExternalURL) == "" {
			return nil, fmt.Errorf("%w: external_url is required for %s resources", ErrInvalidResource, req.ContentType)
		}
	case models.ResourceTypeText:
		if strings.TrimSpace(req.Body) == "" {
			return nil, fmt.Errorf("%w: body is required for text resources", ErrInvalidResource)
		}
	}

	if strings.TrimSpace(req.RevealAt) == "" {
		return nil, nil
	}
	revealAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.RevealAt))
	if err != nil {
		return nil, fmt.Errorf("%w: reveal_at must be RFC3339", ErrInvalidResource)
	}
	return &revealAt, nil
}

// isVisible applies the visibility schedule for students.
func isVisible(resource models.Resource, now time.Time) bool {
	switch resource.Visibility {
	case models.VisibilityPublic, "":
		return true
	case models.VisibilityScheduled:
		return resource.RevealAt != nil && !now.Before(*resource.RevealAt)
	default:
		return false
	}
}

func lessonCourse(lesson *models.Lesson) *models.Course {
	if lesson == nil {
		return nil
	}
	return lesson.Course()
}

// uploadedFileName recovers the readable name from a key made by
// storage.BuildKey.
func uploadedFileName(key string) string {
	name := path.Base(key)
	if len(name) > 37 && name[36] == '-' {
		if _, err := uuid.Parse(name[:36]); err == nil {
			return name[37:]
		}
	}
	return name
}

func lessonPrefix(lessonID uint) string {
	return fmt.Sprintf("lessons/%d", lessonID)
}
