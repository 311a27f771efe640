package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/models"
)

func TestResourceRepositoryAppendVersionIsMonotonic(t *testing.T) {
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)
	repo := NewResourceRepository(db)
	ctx := context.Background()

	resource := seedFileResource(t, db, fx.lesson.ID, "res/v1.pdf")

	for _, key := range []string{"res/v2.pdf", "res/v3.pdf"} {
		version := models.ResourceVersion{StoreKey: key, FileName: key, FileSize: 20, MimeType: "application/pdf", UploadedBy: fx.lecturer.ID}
		updated, err := repo.AppendVersion(ctx, resource.ID, &version)
		require.NoError(t, err)
		require.Equal(t, key, updated.FileKey)
		require.Equal(t, version.Version, updated.Version)
	}

	versions, err := repo.ListVersions(ctx, resource.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	for i, version := range versions {
		require.Equal(t, i+1, version.Version)
		require.Equal(t, i == 2, version.IsLatest)
	}

	live, err := repo.GetByID(ctx, resource.ID)
	require.NoError(t, err)
	require.Equal(t, 3, live.Version)
	require.Equal(t, "res/v3.pdf", live.FileKey)
	require.NotNil(t, live.Lesson)
	require.True(t, live.Lesson.Module.Course.HasLecturer(fx.lecturer.ID))
}

func TestResourceRepositoryAppendVersionRejectsNonFileResource(t *testing.T) {
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)
	repo := NewResourceRepository(db)

	link := models.Resource{LessonID: fx.lesson.ID, Title: "MDN", ContentType: models.ResourceTypeLink, ExternalURL: "https://developer.mozilla.org", Visibility: models.VisibilityPublic}
	require.NoError(t, repo.Create(context.Background(), &link, nil))

	_, err := repo.AppendVersion(context.Background(), link.ID, &models.ResourceVersion{StoreKey: "k", FileName: "k"})
	require.ErrorIs(t, err, ErrResourceNotFile)

	var count int64
	require.NoError(t, db.Model(&models.ResourceVersion{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestResourceRepositoryDeleteReturnsDistinctKeys(t *testing.T) {
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)
	repo := NewResourceRepository(db)
	ctx := context.Background()

	resource := seedFileResource(t, db, fx.lesson.ID, "res/v1.pdf")
	_, err := repo.AppendVersion(ctx, resource.ID, &models.ResourceVersion{StoreKey: "res/v2.pdf", FileName: "v2.pdf"})
	require.NoError(t, err)

	refs, err := repo.Delete(ctx, resource.ID)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	require.Equal(t, "res/v1.pdf", refs[0].Key)
	require.Equal(t, "res/v2.pdf", refs[1].Key)

	_, err = repo.GetByID(ctx, resource.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var remaining int64
	require.NoError(t, db.Model(&models.ResourceVersion{}).Where("resource_id = ?", resource.ID).Count(&remaining).Error)
	require.Zero(t, remaining)

	_, err = repo.Delete(ctx, resource.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestResourceRepositoryStoreKeyInUse(t *testing.T) {
	db := setupTestDB(t)
	fx := seedHierarchy(t, db)
	repo := NewResourceRepository(db)
	ctx := context.Background()

	seedFileResource(t, db, fx.lesson.ID, "lessons/1/a-slides.pdf")

	inUse, err := repo.StoreKeyInUse(ctx, "lessons/1/a-slides.pdf")
	require.NoError(t, err)
	require.True(t, inUse)

	inUse, err = repo.StoreKeyInUse(ctx, "lessons/1/b-slides.pdf")
	require.NoError(t, err)
	require.False(t, inUse)
}
