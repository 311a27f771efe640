package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/pkg/storage"
)

// ContentKind names the entity at the root of a deletable subtree.
type ContentKind string

const (
	ContentCourse     ContentKind = "course"
	ContentModule     ContentKind = "module"
	ContentLesson     ContentKind = "lesson"
	ContentAssignment ContentKind = "assignment"
)

// ContentRoot identifies a subtree root.
type ContentRoot struct {
	Kind ContentKind
	ID   uint
}

// ContentInventory lists what lives under a subtree root.
type ContentInventory struct {
	Lessons           int
	Resources         int
	Assignments       int
	Submissions       int
	GradedSubmissions int
	ResourceFiles     []storage.ObjectRef
	SubmissionFiles   []storage.ObjectRef
}

// ContentRepository reads and removes content hierarchies.
type ContentRepository interface {
	GetLesson(ctx context.Context, id uint) (models.Lesson, error)
	DeleteSubtree(ctx context.Context, root ContentRoot, guard func(ContentInventory) error) (ContentInventory, error)
}

type contentRepository struct {
	db *gorm.DB
}

// NewContentRepository instantiates the repository.
func NewContentRepository(db *gorm.DB) ContentRepository {
	return &contentRepository{db: db}
}

// GetLesson loads a lesson with its module, course and lecturers.
func (r *contentRepository) GetLesson(ctx context.Context, id uint) (models.Lesson, error) {
	var lesson models.Lesson
	if err := r.db.WithContext(ctx).
		Preload("Module.Course.Lecturers").
		First(&lesson, id).Error; err != nil {
		return models.Lesson{}, err
	}
	return lesson, nil
}

type subtreeIDs struct {
	modules     []uint
	lessons     []uint
	resources   []uint
	assignments []uint
	submissions []uint
}

// DeleteSubtree inventories the subtree, lets guard veto the deletion, then
// removes every descendant row and the root in a single transaction. Rows
// are deleted child first so the result does not depend on the database
// enforcing ON DELETE CASCADE.
func (r *contentRepository) DeleteSubtree(ctx context.Context, root ContentRoot, guard func(ContentInventory) error) (ContentInventory, error) {
	var inventory ContentInventory
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := collectSubtree(tx, root)
		if err != nil {
			return err
		}

		inventory, err = buildInventory(tx, root, ids)
		if err != nil {
			return err
		}

		if guard != nil {
			if err := guard(inventory); err != nil {
				return err
			}
		}

		return deleteSubtreeRows(tx, root, ids)
	})
	if err != nil {
		return ContentInventory{}, err
	}
	return inventory, nil
}

func collectSubtree(tx *gorm.DB, root ContentRoot) (subtreeIDs, error) {
	var ids subtreeIDs

	switch root.Kind {
	case ContentCourse:
		if err := ensureExists(tx, &models.Course{}, root.ID); err != nil {
			return ids, err
		}
		if err := tx.Model(&models.Module{}).Where("course_id = ?", root.ID).Pluck("id", &ids.modules).Error; err != nil {
			return ids, err
		}
		if err := pluckIn(tx, &models.Lesson{}, "module_id", ids.modules, &ids.lessons); err != nil {
			return ids, err
		}
	case ContentModule:
		if err := ensureExists(tx, &models.Module{}, root.ID); err != nil {
			return ids, err
		}
		ids.modules = []uint{root.ID}
		if err := pluckIn(tx, &models.Lesson{}, "module_id", ids.modules, &ids.lessons); err != nil {
			return ids, err
		}
	case ContentLesson:
		if err := ensureExists(tx, &models.Lesson{}, root.ID); err != nil {
			return ids, err
		}
		ids.lessons = []uint{root.ID}
	case ContentAssignment:
		if err := ensureExists(tx, &models.Assignment{}, root.ID); err != nil {
			return ids, err
		}
		ids.assignments = []uint{root.ID}
	default:
		return ids, fmt.Errorf("unsupported content kind %q", root.Kind)
	}

	if root.Kind != ContentAssignment {
		if err := pluckIn(tx, &models.Assignment{}, "lesson_id", ids.lessons, &ids.assignments); err != nil {
			return ids, err
		}
		if err := pluckIn(tx, &models.Resource{}, "lesson_id", ids.lessons, &ids.resources); err != nil {
			return ids, err
		}
	}

	if err := pluckIn(tx, &models.Submission{}, "assignment_id", ids.assignments, &ids.submissions); err != nil {
		return ids, err
	}

	return ids, nil
}

func buildInventory(tx *gorm.DB, root ContentRoot, ids subtreeIDs) (ContentInventory, error) {
	inventory := ContentInventory{
		Resources:   len(ids.resources),
		Assignments: len(ids.assignments),
		Submissions: len(ids.submissions),
	}
	if root.Kind == ContentCourse || root.Kind == ContentModule {
		inventory.Lessons = len(ids.lessons)
	}

	if len(ids.submissions) > 0 {
		var graded int64
		if err := tx.Model(&models.Submission{}).
			Where("id IN ? AND status = ?", ids.submissions, models.SubmissionStatusGraded).
			Count(&graded).Error; err != nil {
			return inventory, err
		}
		inventory.GradedSubmissions = int(graded)
	}

	if len(ids.resources) > 0 {
		var liveKeys, versionKeys []string
		if err := tx.Model(&models.Resource{}).Where("id IN ?", ids.resources).Pluck("file_key", &liveKeys).Error; err != nil {
			return inventory, err
		}
		if err := tx.Model(&models.ResourceVersion{}).Where("resource_id IN ?", ids.resources).Pluck("store_key", &versionKeys).Error; err != nil {
			return inventory, err
		}
		inventory.ResourceFiles = uniqueRefs(append(versionKeys, liveKeys...))
	}

	if len(ids.submissions) > 0 {
		var attachments []models.SubmissionAttachment
		if err := tx.Select("store_key", "external_id").
			Where("submission_id IN ?", ids.submissions).
			Find(&attachments).Error; err != nil {
			return inventory, err
		}
		seen := make(map[string]struct{}, len(attachments))
		for _, attachment := range attachments {
			if attachment.StoreKey == "" {
				continue
			}
			if _, ok := seen[attachment.StoreKey]; ok {
				continue
			}
			seen[attachment.StoreKey] = struct{}{}
			inventory.SubmissionFiles = append(inventory.SubmissionFiles, storage.ObjectRef{
				Key:        attachment.StoreKey,
				ExternalID: attachment.ExternalID,
			})
		}
	}

	return inventory, nil
}

func deleteSubtreeRows(tx *gorm.DB, root ContentRoot, ids subtreeIDs) error {
	steps := []struct {
		model  interface{}
		column string
		ids    []uint
	}{
		{&models.SubmissionAttachment{}, "submission_id", ids.submissions},
		{&models.Submission{}, "id", ids.submissions},
		{&models.ResourceVersion{}, "resource_id", ids.resources},
		{&models.Resource{}, "id", ids.resources},
		{&models.Assignment{}, "id", ids.assignments},
		{&models.Lesson{}, "id", ids.lessons},
		{&models.Module{}, "id", ids.modules},
	}

	for _, step := range steps {
		if len(step.ids) == 0 {
			continue
		}
		if err := tx.Where(step.column+" IN ?", step.ids).Delete(step.model).Error; err != nil {
			return err
		}
	}

	if root.Kind != ContentCourse {
		return nil
	}

	if err := tx.Exec("DELETE FROM course_lecturers WHERE course_id = ?", root.ID).Error; err != nil {
		return err
	}
	if err := tx.Where("course_id = ?", root.ID).Delete(&models.Enrollment{}).Error; err != nil {
		return err
	}

	result := tx.Delete(&models.Course{}, root.ID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func ensureExists(tx *gorm.DB, model interface{}, id uint) error {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func pluckIn(tx *gorm.DB, model interface{}, column string, in []uint, dest *[]uint) error {
	if len(in) == 0 {
		return nil
	}
	return tx.Model(model).Where(column+" IN ?", in).Pluck("id", dest).Error
}
