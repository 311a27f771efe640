package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/middleware"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/service"
	"github.com/noah-isme/gema-lms-api/internal/utils"
)

// SubmissionHandler manages submission endpoints.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to an authenticated group. submitGuards run
// before the submit endpoint only, typically a rate limiter.
func (h *SubmissionHandler) Register(router fiber.Router, submitGuards ...fiber.Handler) {
	student := middleware.RequireRole(models.RoleStudent)
	staff := middleware.RequireRole(models.RoleAdmin, models.RoleLecturer)

	submit := append([]fiber.Handler{student}, submitGuards...)
	submit = append(submit, h.submit)

	router.Get("/assignments/:id/submission", student, h.context)
	router.Post("/assignments/:id/submission", submit...)
	router.Get("/submissions", staff, h.list)
	router.Get("/attachments/:id/download", h.attachment)
}

func (h *SubmissionHandler) context(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}

	result, err := h.service.Context(requestContext(c), assignmentID, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission context retrieved", result)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}

	var payload dto.SubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, "invalid payload", nil)
	}

	var files []service.UploadedFile
	if form, err := c.MultipartForm(); err == nil && form != nil {
		files = service.FilesFromMultipart(form.File["files"])
	}

	result, err := h.service.Submit(requestContext(c), assignmentID, payload, files, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission received", result)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	filter := dto.SubmissionFilter{}
	assignmentID, err := parseQueryUint(c, "assignment_id")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}
	studentID, err := parseQueryUint(c, "student_id")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}
	filter.AssignmentID = assignmentID
	filter.StudentID = studentID
	if status := c.Query("status"); status != "" {
		filter.Status = &status
	}

	submissions, err := h.service.List(requestContext(c), filter, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, submissions, "submissions retrieved", fiber.Map{"total": len(submissions)})
}

func (h *SubmissionHandler) attachment(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}

	signed, err := h.service.AttachmentURL(requestContext(c), id, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "download url issued", signed)
}
