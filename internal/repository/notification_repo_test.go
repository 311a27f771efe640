package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/models"
)

func TestNotificationRepositoryInbox(t *testing.T) {
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	var ids []uint
	for _, message := range []string{"first", "second", "third"} {
		notification := models.Notification{UserID: fx.student.ID, Type: models.NotificationTypeSubmissionGraded, Message: message}
		require.NoError(t, repo.Create(ctx, &notification))
		ids = append(ids, notification.ID)
	}
	require.NoError(t, repo.Create(ctx, &models.Notification{UserID: fx.lecturer.ID, Type: models.NotificationTypeSubmissionGraded, Message: "other"}))

	items, unread, err := repo.List(ctx, NotificationFilter{UserID: fx.student.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.EqualValues(t, 3, unread)
	require.Equal(t, ids[2], items[0].ID)

	_, err = repo.MarkRead(ctx, ids[0], fx.lecturer.ID)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	read, err := repo.MarkRead(ctx, ids[0], fx.student.ID)
	require.NoError(t, err)
	require.True(t, read.Read)

	read, err = repo.MarkRead(ctx, ids[0], fx.student.ID)
	require.NoError(t, err)
	require.True(t, read.Read)

	items, unread, err = repo.List(ctx, NotificationFilter{UserID: fx.student.ID, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.EqualValues(t, 2, unread)

	updated, err := repo.MarkAllRead(ctx, fx.student.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, updated)

	_, unread, err = repo.List(ctx, NotificationFilter{UserID: fx.lecturer.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, unread)
}
