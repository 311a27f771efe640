package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/repository"
)

func TestNotifyGradedPersistsAndPublishes(t *testing.T) {
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	ctx := context.Background()
	sub := redisClient.Subscribe(ctx, "gema:notifications")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	svc := NewNotificationService(repository.NewNotificationRepository(db), redisClient, "gema", nil, testLogger())

	err = svc.NotifyGraded(ctx, GradedEvent{
		SubmissionID:    7,
		AssignmentID:    fx.assignment.ID,
		AssignmentTitle: "Build a <script>form</script>",
		StudentID:       fx.student.ID,
		StudentEmail:    fx.student.Email,
		Grade:           85,
		MaxGrade:        100,
		GradedAt:        time.Now(),
	})
	require.NoError(t, err)

	msgCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(msgCtx)
	require.NoError(t, err)

	var event notificationEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	require.Equal(t, uint(7), event.Event.SubmissionID)
	require.Equal(t, models.NotificationTypeSubmissionGraded, event.Notification.Type)
	require.NotContains(t, event.Notification.Message, "<script>")
	require.Contains(t, event.Notification.Message, "85 / 100")

	page, err := svc.List(ctx, fx.student.ID, dto.NotificationListRequest{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.EqualValues(t, 1, page.Unread)
	require.False(t, page.Items[0].Read)

	_, err = svc.MarkRead(ctx, page.Items[0].ID, fx.lecturer.ID)
	require.ErrorIs(t, err, ErrNotificationNotFound)

	read, err := svc.MarkRead(ctx, page.Items[0].ID, fx.student.ID)
	require.NoError(t, err)
	require.True(t, read.Read)

	page, err = svc.List(ctx, fx.student.ID, dto.NotificationListRequest{UnreadOnly: true})
	require.NoError(t, err)
	require.Empty(t, page.Items)
	require.Zero(t, page.Unread)
}

func TestNotificationMarkAllRead(t *testing.T) {
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)
	ctx := context.Background()
	svc := NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, testLogger())

	for _, title := range []string{"Quiz 1", "Quiz 2", "Quiz 3"} {
		require.NoError(t, svc.NotifyGraded(ctx, GradedEvent{AssignmentTitle: title, StudentID: fx.student.ID, Grade: 7, MaxGrade: 10}))
	}
	require.NoError(t, svc.NotifyGraded(ctx, GradedEvent{AssignmentTitle: "Other", StudentID: fx.lecturer.ID, Grade: 1, MaxGrade: 10}))

	updated, err := svc.MarkAllRead(ctx, fx.student.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, updated)

	updated, err = svc.MarkAllRead(ctx, fx.student.ID)
	require.NoError(t, err)
	require.Zero(t, updated)

	page, err := svc.List(ctx, fx.lecturer.ID, dto.NotificationListRequest{})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Unread)

	_, err = svc.MarkAllRead(ctx, 0)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestNotifyGradedWithoutBrokers(t *testing.T) {
	db := setupTestDB(t)
	svc := NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, testLogger())

	require.NoError(t, svc.NotifyGraded(context.Background(), GradedEvent{StudentID: 3, Grade: 1, MaxGrade: 2}))
}
