package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/models"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 100
)

// NotificationFilter scopes an inbox query to one recipient.
type NotificationFilter struct {
	UserID     uint
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationRepository persists in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, filter NotificationFilter) ([]models.Notification, int64, error)
	MarkRead(ctx context.Context, id, userID uint) (models.Notification, error)
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository constructs a repository backed by GORM.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// List returns one page of the inbox, newest first, together with the
// recipient's total unread count.
func (r *notificationRepository) List(ctx context.Context, filter NotificationFilter) ([]models.Notification, int64, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxNotificationLimit {
		limit = defaultNotificationLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	inbox := r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", filter.UserID)

	var unread int64
	if err := inbox.Session(&gorm.Session{}).Where("read = ?", false).Count(&unread).Error; err != nil {
		return nil, 0, err
	}

	page := inbox.Session(&gorm.Session{})
	if filter.UnreadOnly {
		page = page.Where("read = ?", false)
	}

	var notifications []models.Notification
	if err := page.
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&notifications).Error; err != nil {
		return nil, 0, err
	}

	return notifications, unread, nil
}

// MarkRead flags one notification as read. Rows owned by another user are
// reported as gorm.ErrRecordNotFound.
func (r *notificationRepository) MarkRead(ctx context.Context, id, userID uint) (models.Notification, error) {
	var notification models.Notification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&notification).Error; err != nil {
			return err
		}
		if notification.Read {
			return nil
		}
		if err := tx.Model(&models.Notification{}).
			Where("id = ? AND read = ?", notification.ID, false).
			Update("read", true).Error; err != nil {
			return err
		}
		notification.Read = true
		return nil
	})
	if err != nil {
		return models.Notification{}, err
	}

	return notification, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	return result.RowsAffected, result.Error
}
