package service

import (
	"context"
	"errors"
	"strings"

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

// ContentDeletionService removes content hierarchies together with their files.
type ContentDeletionService interface {
	DeleteSubtree(ctx context.Context, kind string, id uint, force bool, actor ActivityActor) (dto.DeletionReport, error)
}

type contentDeletionService struct {
	repo            repository.ContentRepository
	resourceStore   storage.Gateway
	submissionStore storage.Gateway
	activity        ActivityRecorder
	janitor         *storageJanitor
	logger          zerolog.Logger
	tracer          trace.Tracer
}

// NewContentDeletionService wires the coordinator to both object stores.
func NewContentDeletionService(repo repository.ContentRepository, resourceStore, submissionStore storage.Gateway, activity ActivityRecorder, deleteConcurrency int, logger zerolog.Logger) ContentDeletionService {
	return &contentDeletionService{
		repo:            repo,
		resourceStore:   resourceStore,
		submissionStore: submissionStore,
		activity:        activity,
		janitor:         newStorageJanitor(deleteConcurrency, logger),
		logger:          logger.With().Str("component", "content_deletion_service").Logger(),
		tracer:          otel.Tracer("github.com/noah-isme/gema-lms-api/internal/service/content_deletion"),
	}
}

// DeleteSubtree deletes the relational subtree in one transaction and only
// then removes the referenced files, one concurrent batch per store. File
// failures are reported, never returned.
func (s *contentDeletionService) DeleteSubtree(ctx context.Context, kind string, id uint, force bool, actor ActivityActor) (dto.DeletionReport, error) {
	ctx, span := s.tracer.Start(ctx, "content.delete_subtree", trace.WithAttributes(
		attribute.String("content.kind", kind),
		attribute.Int64("content.id", int64(id)),
		attribute.Bool("content.force", force),
	))
	defer span.End()

	if !actor.IsAdmin() {
		span.SetStatus(codes.Error, "unauthorized")
		return dto.DeletionReport{}, ErrUnauthorized
	}

	root, err := parseContentRoot(kind, id)
	if err != nil {
		return dto.DeletionReport{}, err
	}

	guard := func(inventory repository.ContentInventory) error {
		if force || (inventory.Submissions == 0 && inventory.Lessons == 0) {
			return nil
		}
		return &ConfirmationRequiredError{
			Count:       inventory.Lessons + inventory.Resources + inventory.Submissions,
			Lessons:     inventory.Lessons,
			Resources:   inventory.Resources,
			Submissions: inventory.Submissions,
		}
	}

	inventory, err := s.repo.DeleteSubtree(ctx, root, guard)
	if err != nil {
		var confirm *ConfirmationRequiredError
		switch {
		case errors.As(err, &confirm):
			span.SetStatus(codes.Error, "confirmation_required")
			return dto.DeletionReport{}, confirm
		case errors.Is(err, gorm.ErrRecordNotFound):
			return dto.DeletionReport{}, ErrContentNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "relational_delete_failed")
		return dto.DeletionReport{}, err
	}

	report := s.janitor.purge(ctx,
		cleanupBatch{gateway: s.resourceStore, refs: inventory.ResourceFiles},
		cleanupBatch{gateway: s.submissionStore, refs: inventory.SubmissionFiles},
	)

	span.SetAttributes(
		attribute.Int("deletion.files_attempted", report.FilesAttempted),
		attribute.Int("deletion.files_deleted", report.FilesDeleted),
		attribute.Int("deletion.files_failed", report.FilesFailed),
	)
	s.logger.Info().
		Str("kind", string(root.Kind)).
		Uint("id", root.ID).
		Int("files_attempted", report.FilesAttempted).
		Int("files_failed", report.FilesFailed).
		Msg("content subtree deleted")

	recordActivity(ctx, s.activity, actor, models.ActivityContentDeleted, string(root.Kind), root.ID, map[string]interface{}{
		"force":           force,
		"lessons":         inventory.Lessons,
		"resources":       inventory.Resources,
		"assignments":     inventory.Assignments,
		"submissions":     inventory.Submissions,
		"files_attempted": report.FilesAttempted,
		"files_failed":    report.FilesFailed,
	})

	return report, nil
}

func parseContentRoot(kind string, id uint) (repository.ContentRoot, error) {
	switch repository.ContentKind(strings.ToLower(strings.TrimSpace(kind))) {
	case repository.ContentCourse:
		return repository.ContentRoot{Kind: repository.ContentCourse, ID: id}, nil
	case repository.ContentModule:
		return repository.ContentRoot{Kind: repository.ContentModule, ID: id}, nil
	case repository.ContentLesson:
		return repository.ContentRoot{Kind: repository.ContentLesson, ID: id}, nil
	case repository.ContentAssignment:
		return repository.ContentRoot{Kind: repository.ContentAssignment, ID: id}, nil
	default:
		return repository.ContentRoot{}, ErrUnsupportedContentKind
	}
}
