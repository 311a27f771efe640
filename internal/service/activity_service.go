package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/repository"
)

const (
	defaultActivityPageSize = 20
	maxActivityPageSize     = 100
	redactedValue           = "***"
)

// Metadata keys containing any of these fragments never reach the audit table.
var redactedKeyFragments = []string{"email", "token", "secret", "signature", "url"}

// ActivityActor represents the authenticated caller performing an action.
type ActivityActor struct {
	ID   uint
	Role string
}

// IsAdmin reports whether the actor holds the admin role.
func (a ActivityActor) IsAdmin() bool {
	return strings.EqualFold(a.Role, models.RoleAdmin)
}

// IsStaff reports whether the actor may manage course content.
func (a ActivityActor) IsStaff() bool {
	return a.IsAdmin() || strings.EqualFold(a.Role, models.RoleLecturer)
}

// ActivityEntry is one audited mutation.
type ActivityEntry struct {
	ActorID    uint
	ActorRole  string
	Action     string
	EntityType string
	EntityID   *uint
	Metadata   map[string]interface{}
}

// ActivityRecorder persists audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error)
}

// ActivityService records the audit trail and serves it to admins.
type ActivityService interface {
	ActivityRecorder
	List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error)
}

type activityService struct {
	repo   repository.ActivityLogRepository
	logger zerolog.Logger
}

// NewActivityService constructs the activity log service.
func NewActivityService(repo repository.ActivityLogRepository, logger zerolog.Logger) ActivityService {
	return &activityService{
		repo:   repo,
		logger: logger.With().Str("component", "activity_service").Logger(),
	}
}

// Record stores the entry with sensitive metadata masked. When the context
// carries a sampled span its trace id is attached so the entry can be joined
// with the request trace.
func (s *activityService) Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	action := strings.ToLower(strings.TrimSpace(entry.Action))
	if !models.IsKnownActivity(action) {
		return dto.ActivityResponse{}, ErrUnknownActivity
	}
	entityType := strings.ToLower(strings.TrimSpace(entry.EntityType))
	if entityType == "" {
		return dto.ActivityResponse{}, errors.New("entity type is required")
	}

	metadata := redactMetadata(entry.Metadata)
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.HasTraceID() {
		metadata["trace_id"] = spanCtx.TraceID().String()
	}

	model := models.ActivityLog{
		ActorID:    entry.ActorID,
		ActorRole:  actorRole(entry.ActorRole),
		Action:     action,
		EntityType: entityType,
		EntityID:   entry.EntityID,
		Metadata:   metadata,
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).Str("action", action).Str("entity_type", entityType).Msg("failed to persist activity log")
		return dto.ActivityResponse{}, err
	}

	return dto.NewActivityResponse(model), nil
}

func (s *activityService) List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error) {
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return dto.ActivityListResponse{}, ErrInvalidActivityFilter
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultActivityPageSize
	case pageSize > maxActivityPageSize:
		pageSize = maxActivityPageSize
	}

	filter := repository.ActivityLogFilter{
		Page:       page,
		PageSize:   pageSize,
		Action:     strings.ToLower(strings.TrimSpace(req.Action)),
		EntityType: strings.ToLower(strings.TrimSpace(req.EntityType)),
		From:       req.From,
		To:         req.To,
	}
	if req.ActorID > 0 {
		filter.ActorID = &req.ActorID
	}
	if req.EntityID > 0 {
		filter.EntityID = &req.EntityID
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.ActivityListResponse{}, err
	}

	items := make([]dto.ActivityResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.NewActivityResponse(entry))
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	if totalPages == 0 {
		totalPages = 1
	}

	return dto.ActivityListResponse{
		Items: items,
		Pagination: dto.PaginationMeta{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: totalPages,
		},
	}, nil
}

// recordActivity writes an audit entry. Failures are logged by the recorder
// and never surface to the caller of the audited operation.
func recordActivity(ctx context.Context, recorder ActivityRecorder, actor ActivityActor, action, entityType string, entityID uint, metadata map[string]interface{}) {
	if recorder == nil {
		return
	}
	id := entityID
	_, _ = recorder.Record(ctx, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   &id,
		Metadata:   metadata,
	})
}

func redactMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(metadata)+1)
	for key, value := range metadata {
		if isSensitiveKey(key) {
			out[key] = redactedValue
			continue
		}
		out[key] = value
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range redactedKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func actorRole(role string) string {
	if r := strings.ToLower(strings.TrimSpace(role)); r != "" {
		return r
	}
	return "system"
}
