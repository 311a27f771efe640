package dto

import (
	"time"

	"github.com/noah-isme/gema-lms-api/internal/models"
)

// ResourceCreateRequest captures the multipart fields of a resource upload.
type ResourceCreateRequest struct {
	Title        string `form:"title" validate:"required,min=2,max=255"`
	ContentType  string `form:"content_type" validate:"required,oneof=file link embed text"`
	ExternalURL  string `form:"external_url" validate:"omitempty,url"`
	Body         string `form:"body"`
	Visibility   string `form:"visibility" validate:"omitempty,oneof=public scheduled hidden"`
	RevealAt     string `form:"reveal_at" validate:"required_if=Visibility scheduled,omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Downloadable *bool  `form:"downloadable"`
	Position     int    `form:"position" validate:"gte=0"`
	UploadKey    string `form:"upload_key" validate:"omitempty,max=512"`
}

// ResourceVersionRequest attaches a directly uploaded object as a new version.
type ResourceVersionRequest struct {
	UploadKey string `form:"upload_key" json:"upload_key" validate:"required,max=512"`
}

// UploadURLRequest asks for a direct-to-store upload URL.
type UploadURLRequest struct {
	FileName string `json:"file_name" validate:"required,min=1,max=255"`
	MimeType string `json:"mime_type" validate:"required"`
	Size     int64  `json:"size" validate:"gte=0"`
}

// ResourceResponse is the API shape of a lesson resource.
type ResourceResponse struct {
	ID           uint       `json:"id"`
	LessonID     uint       `json:"lesson_id"`
	Title        string     `json:"title"`
	ContentType  string     `json:"content_type"`
	ExternalURL  string     `json:"external_url,omitempty"`
	Body         string     `json:"body,omitempty"`
	FileName     string     `json:"file_name,omitempty"`
	FileSize     int64      `json:"file_size,omitempty"`
	MimeType     string     `json:"mime_type,omitempty"`
	Version      int        `json:"version"`
	Visibility   string     `json:"visibility"`
	RevealAt     *time.Time `json:"reveal_at,omitempty"`
	Downloadable bool       `json:"downloadable"`
	Position     int        `json:"position"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ResourceVersionResponse is one entry of a resource's history.
type ResourceVersionResponse struct {
	Version    int       `json:"version"`
	FileName   string    `json:"file_name"`
	FileSize   int64     `json:"file_size"`
	MimeType   string    `json:"mime_type"`
	UploadedBy uint      `json:"uploaded_by"`
	IsLatest   bool      `json:"is_latest"`
	CreatedAt  time.Time `json:"created_at"`
}

// SignedURLResponse carries a time-limited URL.
type SignedURLResponse struct {
	URL       string    `json:"url"`
	Key       string    `json:"key,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewResourceResponse converts a Resource model into a DTO.
func NewResourceResponse(model models.Resource) ResourceResponse {
	return ResourceResponse{
		ID:           model.ID,
		LessonID:     model.LessonID,
		Title:        model.Title,
		ContentType:  model.ContentType,
		ExternalURL:  model.ExternalURL,
		Body:         model.Body,
		FileName:     model.FileName,
		FileSize:     model.FileSize,
		MimeType:     model.MimeType,
		Version:      model.Version,
		Visibility:   model.Visibility,
		RevealAt:     model.RevealAt,
		Downloadable: model.Downloadable,
		Position:     model.Position,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

// NewResourceVersionResponses converts history rows into DTOs.
func NewResourceVersionResponses(versions []models.ResourceVersion) []ResourceVersionResponse {
	responses := make([]ResourceVersionResponse, 0, len(versions))
	for _, version := range versions {
		responses = append(responses, ResourceVersionResponse{
			Version:    version.Version,
			FileName:   version.FileName,
			FileSize:   version.FileSize,
			MimeType:   version.MimeType,
			UploadedBy: version.UploadedBy,
			IsLatest:   version.IsLatest,
			CreatedAt:  version.CreatedAt,
		})
	}
	return responses
}
