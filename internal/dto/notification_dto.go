package dto

import (
	"time"

	"github.com/noah-isme/gema-lms-api/internal/models"
)

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID        uint                   `json:"id"`
	UserID    uint                   `json:"user_id"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Payload   map[string]interface{} `json:"payload"`
	Read      bool                   `json:"read"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Type:      model.Type,
		Message:   model.Message,
		Payload:   metadataFromJSON(model.Payload),
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}

// NotificationListRequest pages through the caller's inbox.
type NotificationListRequest struct {
	Limit      int  `json:"limit" validate:"omitempty,min=1,max=100"`
	Offset     int  `json:"offset" validate:"omitempty,min=0"`
	UnreadOnly bool `json:"unread_only"`
}

// NotificationPage is one inbox page plus the recipient's unread total.
type NotificationPage struct {
	Items  []NotificationResponse `json:"items"`
	Unread int64                  `json:"unread"`
}
