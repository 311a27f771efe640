package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

type hierarchy struct {
	lecturer   models.User
	student    models.User
	course     models.Course
	module     models.Module
	lesson     models.Lesson
	assignment models.Assignment
}

func seedHierarchy(t *testing.T, db *gorm.DB) hierarchy {
	t.Helper()

	lecturer := models.User{Name: "Dr. Rahma", Email: uuid.NewString() + "@gema.test", Role: models.RoleLecturer}
	student := models.User{Name: "Budi", Email: uuid.NewString() + "@gema.test", Role: models.RoleStudent}
	require.NoError(t, db.Create(&lecturer).Error)
	require.NoError(t, db.Create(&student).Error)

	course := models.Course{Title: "Web Programming", Lecturers: []models.User{lecturer}}
	require.NoError(t, db.Create(&course).Error)

	module := models.Module{CourseID: course.ID, Title: "HTML Basics"}
	require.NoError(t, db.Create(&module).Error)

	lesson := models.Lesson{ModuleID: module.ID, Title: "Forms"}
	require.NoError(t, db.Create(&lesson).Error)

	assignment := models.Assignment{
		LessonID:          lesson.ID,
		Title:             "Build a form",
		DueDate:           time.Now().Add(24 * time.Hour),
		MaxPoints:         100,
		AllowedExtensions: []string{"pdf"},
		MaxFileSizeBytes:  1 << 20,
		MaxFiles:          2,
	}
	require.NoError(t, db.Create(&assignment).Error)

	require.NoError(t, db.Create(&models.Enrollment{CourseID: course.ID, StudentID: student.ID, Status: models.EnrollmentStatusActive}).Error)

	return hierarchy{
		lecturer:   lecturer,
		student:    student,
		course:     course,
		module:     module,
		lesson:     lesson,
		assignment: assignment,
	}
}

func seedFileResource(t *testing.T, db *gorm.DB, lessonID uint, key string) models.Resource {
	t.Helper()
	repo := NewResourceRepository(db)
	resource := models.Resource{
		LessonID:    lessonID,
		Title:       "Slides",
		ContentType: models.ResourceTypeFile,
		FileKey:     key,
		FileName:    "slides.pdf",
		FileSize:    10,
		MimeType:    "application/pdf",
		Version:     1,
		Visibility:  models.VisibilityPublic,
	}
	version := models.ResourceVersion{StoreKey: key, FileName: "slides.pdf", FileSize: 10, MimeType: "application/pdf"}
	require.NoError(t, repo.Create(t.Context(), &resource, &version))
	return resource
}

func seedSubmission(t *testing.T, db *gorm.DB, assignmentID, studentID uint, status models.SubmissionStatus, keys ...string) models.Submission {
	t.Helper()
	submission := models.Submission{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Status:       status,
		SubmittedAt:  time.Now(),
	}
	for _, key := range keys {
		submission.Attachments = append(submission.Attachments, models.SubmissionAttachment{
			StoreKey:   key,
			ExternalID: "asset-" + key,
			FileName:   key,
			FileSize:   5,
			MimeType:   "application/pdf",
		})
	}
	require.NoError(t, db.Create(&submission).Error)
	return submission
}
