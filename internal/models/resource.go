package models

import "time"

// Resource content types.
const (
	ResourceTypeFile  = "file"
	ResourceTypeLink  = "link"
	ResourceTypeEmbed = "embed"
	ResourceTypeText  = "text"
)

// Resource visibility values.
const (
	VisibilityPublic    = "public"
	VisibilityScheduled = "scheduled"
	VisibilityHidden    = "hidden"
)

// Resource is a piece of lesson content. For file resources the File*
// columns point at the latest ResourceVersion.
type Resource struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	LessonID     uint              `gorm:"not null;index" json:"lesson_id"`
	Title        string            `gorm:"size:255;not null" json:"title"`
	ContentType  string            `gorm:"size:16;not null" json:"content_type"`
	ExternalURL  string            `gorm:"size:1024" json:"external_url,omitempty"`
	Body         string            `gorm:"type:text" json:"body,omitempty"`
	FileKey      string            `gorm:"size:512" json:"-"`
	FileName     string            `gorm:"size:255" json:"file_name,omitempty"`
	FileSize     int64             `json:"file_size,omitempty"`
	MimeType     string            `gorm:"size:128" json:"mime_type,omitempty"`
	Version      int               `gorm:"not null;default:0" json:"version"`
	Visibility   string            `gorm:"size:16;not null;default:public" json:"visibility"`
	RevealAt     *time.Time        `json:"reveal_at,omitempty"`
	Downloadable bool              `gorm:"not null" json:"downloadable"`
	Position     int               `gorm:"not null;default:0" json:"position"`
	UploadedBy   uint              `json:"uploaded_by"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Lesson       *Lesson           `json:"-"`
	Versions     []ResourceVersion `gorm:"constraint:OnDelete:CASCADE" json:"versions,omitempty"`
}

// IsFile reports whether the resource carries a stored file.
func (r Resource) IsFile() bool {
	return r.ContentType == ResourceTypeFile
}

// ResourceVersion is an immutable history entry for a file resource.
type ResourceVersion struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ResourceID uint      `gorm:"not null;uniqueIndex:idx_resource_versions_resource_version" json:"resource_id"`
	Version    int       `gorm:"not null;uniqueIndex:idx_resource_versions_resource_version" json:"version"`
	StoreKey   string    `gorm:"size:512;not null" json:"-"`
	FileName   string    `gorm:"size:255;not null" json:"file_name"`
	FileSize   int64     `gorm:"not null" json:"file_size"`
	MimeType   string    `gorm:"size:128" json:"mime_type"`
	UploadedBy uint      `json:"uploaded_by"`
	IsLatest   bool      `gorm:"not null;default:false" json:"is_latest"`
	CreatedAt  time.Time `json:"created_at"`
}
