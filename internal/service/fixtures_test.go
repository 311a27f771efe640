package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/pkg/storage"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

type hierarchy struct {
	admin      models.User
	lecturer   models.User
	outsider   models.User
	student    models.User
	course     models.Course
	module     models.Module
	lesson     models.Lesson
	assignment models.Assignment
}

func (h hierarchy) adminActor() ActivityActor {
	return ActivityActor{ID: h.admin.ID, Role: models.RoleAdmin}
}

func (h hierarchy) lecturerActor() ActivityActor {
	return ActivityActor{ID: h.lecturer.ID, Role: models.RoleLecturer}
}

func (h hierarchy) outsiderActor() ActivityActor {
	return ActivityActor{ID: h.outsider.ID, Role: models.RoleLecturer}
}

func (h hierarchy) studentActor() ActivityActor {
	return ActivityActor{ID: h.student.ID, Role: models.RoleStudent}
}

// seedHierarchy creates one course with a lecturer, a lesson, an assignment
// accepting up to two pdf files of 1 MiB, and an enrolled student.
func seedHierarchy(t *testing.T, db *gorm.DB) hierarchy {
	t.Helper()

	users := []models.User{
		{Name: "Admin", Email: uuid.NewString() + "@gema.test", Role: models.RoleAdmin},
		{Name: "Dr. Rahma", Email: uuid.NewString() + "@gema.test", Role: models.RoleLecturer},
		{Name: "Dr. Other", Email: uuid.NewString() + "@gema.test", Role: models.RoleLecturer},
		{Name: "Budi", Email: uuid.NewString() + "@gema.test", Role: models.RoleStudent},
	}
	for i := range users {
		require.NoError(t, db.Create(&users[i]).Error)
	}

	course := models.Course{Title: "Web Programming", Lecturers: []models.User{users[1]}}
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

	require.NoError(t, db.Create(&models.Enrollment{CourseID: course.ID, StudentID: users[3].ID, Status: models.EnrollmentStatusActive}).Error)

	return hierarchy{
		admin:      users[0],
		lecturer:   users[1],
		outsider:   users[2],
		student:    users[3],
		course:     course,
		module:     module,
		lesson:     lesson,
		assignment: assignment,
	}
}

func pdf(name string) UploadedFile {
	return BytesFile(name, "application/pdf", []byte("%PDF-1.4 "+name))
}

// fakeGateway is an in-memory object store with injectable failures.
type fakeGateway struct {
	mu           sync.Mutex
	name         string
	objects      map[string][]byte
	uploadCalls  int
	failUploadAt int
	deleted      []string
	failDelete   map[string]bool
	signErr      error
}

func newFakeGateway(name string) *fakeGateway {
	return &fakeGateway{name: name, objects: map[string][]byte{}, failDelete: map[string]bool{}}
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) Upload(ctx context.Context, input storage.UploadInput) (storage.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.uploadCalls++
	if g.failUploadAt > 0 && g.uploadCalls == g.failUploadAt {
		return storage.Object{}, storage.NewError(storage.ErrUploadFailed, g.name, "", io.ErrUnexpectedEOF)
	}

	data, err := io.ReadAll(input.Reader)
	if err != nil {
		return storage.Object{}, storage.NewError(storage.ErrUploadFailed, g.name, "", err)
	}
	key := storage.BuildKey(input.Prefix, input.Name)
	g.objects[key] = data
	return storage.Object{Key: key, ExternalID: "ext-" + key, Size: int64(len(data))}, nil
}

func (g *fakeGateway) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.signErr != nil {
		return "", storage.NewError(storage.ErrSigningFailed, g.name, key, g.signErr)
	}
	if _, ok := g.objects[key]; !ok {
		return "", storage.NewError(storage.ErrSigningFailed, g.name, key, storage.ErrObjectNotFound)
	}
	return "https://" + g.name + ".test/" + key + "?ttl=" + ttl.String(), nil
}

func (g *fakeGateway) Delete(ctx context.Context, ref storage.ObjectRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.deleted = append(g.deleted, ref.Key)
	if g.failDelete[ref.Key] {
		return storage.NewError(storage.ErrDeleteFailed, g.name, ref.Key, io.ErrClosedPipe)
	}
	if _, ok := g.objects[ref.Key]; !ok {
		return storage.NewError(storage.ErrDeleteFailed, g.name, ref.Key, storage.ErrObjectNotFound)
	}
	delete(g.objects, ref.Key)
	return nil
}

func (g *fakeGateway) put(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[key] = bytes.Repeat([]byte{1}, 4)
}

func (g *fakeGateway) has(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.objects[key]
	return ok
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.objects)
}

func (g *fakeGateway) deletes() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.deleted...)
}

// fakeSigningGateway also issues direct upload URLs. Objects written through
// them are recorded with putUpload.
type fakeSigningGateway struct {
	*fakeGateway
	types map[string]string
}

func newFakeSigningGateway(name string) fakeSigningGateway {
	return fakeSigningGateway{fakeGateway: newFakeGateway(name), types: map[string]string{}}
}

func (g fakeSigningGateway) SignedUploadURL(ctx context.Context, key, mimeType string, ttl time.Duration) (string, error) {
	return "https://" + g.name + ".test/upload/" + key, nil
}

func (g fakeSigningGateway) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	data, ok := g.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.NewError(storage.ErrUploadFailed, g.name, key, storage.ErrObjectNotFound)
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: g.types[key]}, nil
}

// putUpload simulates a client PUT to a signed upload URL.
func (g fakeSigningGateway) putUpload(key string, size int, contentType string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[key] = bytes.Repeat([]byte{1}, size)
	g.types[key] = contentType
}
