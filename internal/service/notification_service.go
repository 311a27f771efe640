package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/observability"
	"github.com/noah-isme/gema-lms-api/internal/repository"
)

// GradedEvent is emitted once a submission transitions to graded.
type GradedEvent struct {
	SubmissionID    uint      `json:"submission_id"`
	AssignmentID    uint      `json:"assignment_id"`
	AssignmentTitle string    `json:"assignment_title"`
	StudentID       uint      `json:"student_id"`
	StudentEmail    string    `json:"student_email"`
	Grade           float64   `json:"grade"`
	MaxGrade        float64   `json:"max_grade"`
	Feedback        string    `json:"feedback"`
	GradedAt        time.Time `json:"graded_at"`
}

// GradeNotifier dispatches graded notifications.
type GradeNotifier interface {
	NotifyGraded(ctx context.Context, event GradedEvent) error
}

// NotificationService stores in-app notifications and fans them out to brokers.
type NotificationService interface {
	GradeNotifier
	List(ctx context.Context, userID uint, req dto.NotificationListRequest) (dto.NotificationPage, error)
	MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
}

// ErrNotificationNotFound indicates the notification does not exist for the user.
var ErrNotificationNotFound = errors.New("notification not found")

type notificationService struct {
	repo         repository.NotificationRepository
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	tracer       trace.Tracer
	sanitizer    *bluemonday.Policy
	nodeID       string
}

type notificationEvent struct {
	Source       string                   `json:"source"`
	Event        GradedEvent              `json:"event"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

// NewNotificationService constructs a notification service. Either broker may be nil.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) NotificationService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":notifications"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".notifications"
	}

	return &notificationService{
		repo:         repo,
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "notification_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/gema-lms-api/internal/service/notification"),
		sanitizer:    bluemonday.StrictPolicy(),
		nodeID:       uuid.NewString(),
	}
}

func (s *notificationService) NotifyGraded(ctx context.Context, event GradedEvent) error {
	ctx, span := s.tracer.Start(ctx, "notifications.graded", trace.WithAttributes(
		attribute.Int64("notification.user_id", int64(event.StudentID)),
		attribute.Int64("notification.submission_id", int64(event.SubmissionID)),
	))
	defer span.End()

	message := strings.TrimSpace(s.sanitizer.Sanitize(fmt.Sprintf(
		"%s was graded: %s / %s", event.AssignmentTitle, formatPoints(event.Grade), formatPoints(event.MaxGrade),
	)))

	model := models.Notification{
		UserID:  event.StudentID,
		Type:    models.NotificationTypeSubmissionGraded,
		Message: message,
		Payload: datatypes.JSONMap{
			"submission_id": event.SubmissionID,
			"assignment_id": event.AssignmentID,
			"grade":         event.Grade,
			"max_grade":     event.MaxGrade,
		},
	}

	if s.repo != nil {
		if err := s.repo.Create(ctx, &model); err != nil {
			span.RecordError(err)
			return err
		}
	}

	payload, err := json.Marshal(notificationEvent{
		Source:       s.nodeID,
		Event:        event,
		Notification: dto.NewNotificationResponse(model),
		SentAt:       time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	var errs []error
	if s.redis != nil && s.redisChannel != "" {
		err := s.redis.Publish(ctx, s.redisChannel, payload).Err()
		observability.NotificationsPublished().WithLabelValues("redis", publishResult(err)).Inc()
		if err != nil {
			errs = append(errs, fmt.Errorf("redis publish: %w", err))
		}
	}
	if s.nats != nil && s.natsSubject != "" {
		err := s.nats.Publish(s.natsSubject, payload)
		observability.NotificationsPublished().WithLabelValues("nats", publishResult(err)).Inc()
		if err != nil {
			errs = append(errs, fmt.Errorf("nats publish: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (s *notificationService) List(ctx context.Context, userID uint, req dto.NotificationListRequest) (dto.NotificationPage, error) {
	if userID == 0 {
		return dto.NotificationPage{}, ErrUnauthorized
	}

	notifications, unread, err := s.repo.List(ctx, repository.NotificationFilter{
		UserID:     userID,
		UnreadOnly: req.UnreadOnly,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		return dto.NotificationPage{}, err
	}

	return dto.NotificationPage{Items: dto.NewNotificationResponseSlice(notifications), Unread: unread}, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.Int64("notification.user_id", int64(userID)),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.NotificationResponse{}, ErrNotificationNotFound
		}
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	if userID == 0 {
		return 0, ErrUnauthorized
	}

	updated, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Debug().Uint("user_id", userID).Int64("updated", updated).Msg("inbox marked as read")
	return updated, nil
}

func publishResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func formatPoints(value float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", value), "0"), ".")
}
