package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/pkg/storage"
)

// ResourceRepository persists lesson resources and their version history.
type ResourceRepository interface {
	Create(ctx context.Context, resource *models.Resource, version *models.ResourceVersion) error
	GetByID(ctx context.Context, id uint) (models.Resource, error)
	ListVersions(ctx context.Context, resourceID uint) ([]models.ResourceVersion, error)
	GetVersion(ctx context.Context, resourceID uint, version int) (models.ResourceVersion, error)
	AppendVersion(ctx context.Context, resourceID uint, version *models.ResourceVersion) (models.Resource, error)
	Delete(ctx context.Context, id uint) ([]storage.ObjectRef, error)
	StoreKeyInUse(ctx context.Context, key string) (bool, error)
}

type resourceRepository struct {
	db *gorm.DB
}

// NewResourceRepository instantiates a GORM-backed repository.
func NewResourceRepository(db *gorm.DB) ResourceRepository {
	return &resourceRepository{db: db}
}

// Create stores the resource and, for file resources, its first version.
func (r *resourceRepository) Create(ctx context.Context, resource *models.Resource, version *models.ResourceVersion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(resource).Error; err != nil {
			return err
		}
		if version == nil {
			return nil
		}

		version.ResourceID = resource.ID
		version.Version = 1
		version.IsLatest = true
		return tx.Create(version).Error
	})
}

func (r *resourceRepository) GetByID(ctx context.Context, id uint) (models.Resource, error) {
	var resource models.Resource
	if err := r.db.WithContext(ctx).
		Preload("Lesson.Module.Course.Lecturers").
		First(&resource, id).Error; err != nil {
		return models.Resource{}, err
	}
	return resource, nil
}

func (r *resourceRepository) ListVersions(ctx context.Context, resourceID uint) ([]models.ResourceVersion, error) {
	var versions []models.ResourceVersion
	if err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("version ASC").
		Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

func (r *resourceRepository) GetVersion(ctx context.Context, resourceID uint, version int) (models.ResourceVersion, error) {
	var entry models.ResourceVersion
	if err := r.db.WithContext(ctx).
		Where("resource_id = ? AND version = ?", resourceID, version).
		First(&entry).Error; err != nil {
		return models.ResourceVersion{}, err
	}
	return entry, nil
}

// AppendVersion adds version max+1 and moves the live pointer in one transaction.
func (r *resourceRepository) AppendVersion(ctx context.Context, resourceID uint, version *models.ResourceVersion) (models.Resource, error) {
	var updated models.Resource
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		if tx.Dialector.Name() != "sqlite" {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var resource models.Resource
		if err := query.First(&resource, resourceID).Error; err != nil {
			return err
		}
		if !resource.IsFile() {
			return ErrResourceNotFile
		}

		var current int
		if err := tx.Model(&models.ResourceVersion{}).
			Where("resource_id = ?", resourceID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&current).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.ResourceVersion{}).
			Where("resource_id = ? AND is_latest = ?", resourceID, true).
			Update("is_latest", false).Error; err != nil {
			return err
		}

		version.ResourceID = resourceID
		version.Version = current + 1
		version.IsLatest = true
		if err := tx.Create(version).Error; err != nil {
			return err
		}

		if err := tx.Model(&resource).Updates(map[string]interface{}{
			"file_key":  version.StoreKey,
			"file_name": version.FileName,
			"file_size": version.FileSize,
			"mime_type": version.MimeType,
			"version":   version.Version,
		}).Error; err != nil {
			return err
		}

		return tx.First(&updated, resourceID).Error
	})
	if err != nil {
		return models.Resource{}, err
	}
	return updated, nil
}

// Delete removes the resource with its history and returns every distinct
// store key it referenced.
func (r *resourceRepository) Delete(ctx context.Context, id uint) ([]storage.ObjectRef, error) {
	var refs []storage.ObjectRef
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var resource models.Resource
		if err := tx.First(&resource, id).Error; err != nil {
			return err
		}

		var keys []string
		if err := tx.Model(&models.ResourceVersion{}).
			Where("resource_id = ?", id).
			Order("version ASC").
			Pluck("store_key", &keys).Error; err != nil {
			return err
		}
		keys = append(keys, resource.FileKey)
		refs = uniqueRefs(keys)

		if err := tx.Where("resource_id = ?", id).Delete(&models.ResourceVersion{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Resource{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// StoreKeyInUse reports whether any version row references key.
func (r *resourceRepository) StoreKeyInUse(ctx context.Context, key string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.ResourceVersion{}).
		Where("store_key = ?", key).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func uniqueRefs(keys []string) []storage.ObjectRef {
	seen := make(map[string]struct{}, len(keys))
	refs := make([]storage.ObjectRef, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		refs = append(refs, storage.ObjectRef{Key: key})
	}
	return refs
}
