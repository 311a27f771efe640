package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/config"
	"github.com/noah-isme/gema-lms-api/internal/handler"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/repository"
	"github.com/noah-isme/gema-lms-api/internal/router"
	"github.com/noah-isme/gema-lms-api/internal/service"
	"github.com/noah-isme/gema-lms-api/pkg/storage"
)

// memoryStore is an in-memory object store with injectable failures.
type memoryStore struct {
	mu         sync.Mutex
	name       string
	objects    map[string]int
	failUpload bool
	deleted    []string
}

func newMemoryStore(name string) *memoryStore {
	return &memoryStore{name: name, objects: map[string]int{}}
}

func (s *memoryStore) Name() string { return s.name }

func (s *memoryStore) Upload(_ context.Context, input storage.UploadInput) (storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpload {
		return storage.Object{}, storage.NewError(storage.ErrUploadFailed, s.name, "", io.ErrUnexpectedEOF)
	}
	data, err := io.ReadAll(input.Reader)
	if err != nil {
		return storage.Object{}, err
	}
	key := storage.BuildKey(input.Prefix, input.Name)
	s.objects[key] = len(data)
	return storage.Object{Key: key, ExternalID: "asset-" + key, Size: int64(len(data))}, nil
}

func (s *memoryStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return "", storage.NewError(storage.ErrSigningFailed, s.name, key, storage.ErrObjectNotFound)
	}
	return "https://" + s.name + ".test/" + key, nil
}

func (s *memoryStore) Delete(_ context.Context, ref storage.ObjectRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, ref.Key)
	if _, ok := s.objects[ref.Key]; !ok {
		return storage.NewError(storage.ErrDeleteFailed, s.name, ref.Key, storage.ErrObjectNotFound)
	}
	delete(s.objects, ref.Key)
	return nil
}

func (s *memoryStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type testApp struct {
	app         *fiber.App
	db          *gorm.DB
	resources   *memoryStore
	submissions *memoryStore

	admin      models.User
	lecturer   models.User
	student    models.User
	course     models.Course
	lesson     models.Lesson
	assignment models.Assignment
}

// newTestApp wires the real router, services and repositories over sqlite.
// Requests authenticate through the X-User-ID and X-User-Role headers.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	ta := &testApp{
		db:          db,
		resources:   newMemoryStore("resource"),
		submissions: newMemoryStore("submission"),
	}
	ta.seed(t)

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())

	activityService := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	notificationService := service.NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, logger)
	resourceService := service.NewResourceService(
		repository.NewResourceRepository(db),
		repository.NewContentRepository(db),
		repository.NewEnrollmentRepository(db),
		ta.resources, validate, activityService,
		service.ResourceOptions{Policy: service.FilePolicy{AllowedExtensions: []string{"pdf"}, MaxSizeBytes: 1 << 20}},
		logger,
	)
	submissionService := service.NewSubmissionService(
		repository.NewSubmissionRepository(db),
		repository.NewAssignmentRepository(db),
		repository.NewEnrollmentRepository(db),
		ta.submissions, validate, activityService,
		service.SubmissionOptions{},
		logger,
	)
	gradingService := service.NewGradingService(repository.NewSubmissionRepository(db), validate, activityService, notificationService, logger)
	contentService := service.NewContentDeletionService(repository.NewContentRepository(db), ta.resources, ta.submissions, activityService, 4, logger)

	ta.app = fiber.New()
	router.Register(ta.app, config.Config{AppName: "Test"}, router.Dependencies{
		ResourceHandler:     handler.NewResourceHandler(resourceService, logger),
		SubmissionHandler:   handler.NewSubmissionHandler(submissionService, logger),
		GradingHandler:      handler.NewGradingHandler(gradingService, logger),
		ContentHandler:      handler.NewContentHandler(contentService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger),
		ActivityHandler:     handler.NewActivityHandler(activityService, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			if id, err := strconv.ParseUint(c.Get("X-User-ID"), 10, 64); err == nil {
				c.Locals("user_id", uint(id))
			}
			if role := c.Get("X-User-Role"); role != "" {
				c.Locals("user_role", role)
			}
			return c.Next()
		},
	})

	return ta
}

func (ta *testApp) seed(t *testing.T) {
	t.Helper()
	db := ta.db

	ta.admin = models.User{Name: "Admin", Email: "admin@gema.test", Role: models.RoleAdmin}
	ta.lecturer = models.User{Name: "Dr. Rahma", Email: "rahma@gema.test", Role: models.RoleLecturer}
	ta.student = models.User{Name: "Budi", Email: "budi@gema.test", Role: models.RoleStudent}
	for _, user := range []*models.User{&ta.admin, &ta.lecturer, &ta.student} {
		require.NoError(t, db.Create(user).Error)
	}

	ta.course = models.Course{Title: "Web Programming", Lecturers: []models.User{ta.lecturer}}
	require.NoError(t, db.Create(&ta.course).Error)
	module := models.Module{CourseID: ta.course.ID, Title: "HTML Basics"}
	require.NoError(t, db.Create(&module).Error)
	ta.lesson = models.Lesson{ModuleID: module.ID, Title: "Forms"}
	require.NoError(t, db.Create(&ta.lesson).Error)

	ta.assignment = models.Assignment{
		LessonID:          ta.lesson.ID,
		Title:             "Build a form",
		DueDate:           time.Now().Add(24 * time.Hour),
		MaxPoints:         100,
		AllowedExtensions: []string{"pdf"},
		MaxFileSizeBytes:  1 << 20,
		MaxFiles:          2,
	}
	require.NoError(t, db.Create(&ta.assignment).Error)
	require.NoError(t, db.Create(&models.Enrollment{CourseID: ta.course.ID, StudentID: ta.student.ID, Status: models.EnrollmentStatusActive}).Error)
}

type upload struct {
	field string
	name  string
	mime  string
	data  []byte
}

func pdfUpload(field, name string) upload {
	return upload{field: field, name: name, mime: "application/pdf", data: []byte("%PDF-1.4 " + name)}
}

func multipartBody(t *testing.T, fields map[string]string, files ...upload) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for _, file := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="`+file.field+`"; filename="`+file.name+`"`)
		header.Set("Content-Type", file.mime)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func (ta *testApp) do(t *testing.T, req *http.Request, user models.User) *http.Response {
	t.Helper()
	if user.ID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatUint(uint64(user.ID), 10))
		req.Header.Set("X-User-Role", user.Role)
	}
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (ta *testApp) sendMultipart(t *testing.T, method, path string, user models.User, fields map[string]string, files ...upload) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t, fields, files...)
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", contentType)
	return ta.do(t, req, user)
}

func (ta *testApp) sendJSON(t *testing.T, method, path string, user models.User, payload interface{}) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	return ta.do(t, req, user)
}

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Code    string                 `json:"code"`
	Data    json.RawMessage        `json:"data"`
	Details map[string]interface{} `json:"details"`
	Meta    map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func decodeData(t *testing.T, env envelope, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, target))
}

func route(format string, ids ...uint) string {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return fmt.Sprintf(format, args...)
}
