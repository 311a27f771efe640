package handler

import (
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/middleware"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/service"
	"github.com/noah-isme/gema-lms-api/internal/utils"
)

// ResourceHandler exposes lesson resources and their file versions.
type ResourceHandler struct {
	service service.ResourceService
	logger  zerolog.Logger
}

// NewResourceHandler constructs a resource handler.
func NewResourceHandler(service service.ResourceService, logger zerolog.Logger) *ResourceHandler {
	return &ResourceHandler{
		service: service,
		logger:  logger.With().Str("component", "resource_handler").Logger(),
	}
}

// Register wires resource routes on an authenticated group.
func (h *ResourceHandler) Register(router fiber.Router) {
	staff := middleware.RequireRole(models.RoleAdmin, models.RoleLecturer)

	router.Post("/lessons/:lessonId/resources", staff, h.create)
	router.Post("/lessons/:lessonId/resources/upload-url", staff, h.uploadURL)
	router.Post("/resources/:id/versions", staff, h.addVersion)
	router.Get("/resources/:id/versions", staff, h.versions)
	router.Delete("/resources/:id", staff, h.delete)
	router.Get("/resources/:id/download", h.download)
}

func (h *ResourceHandler) create(c *fiber.Ctx) error {
	lessonID, err := parseUintParam(c, "lessonId")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}

	var payload dto.ResourceCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, "invalid payload", nil)
	}

	var file *service.UploadedFile
	if header, err := c.FormFile("file"); err == nil {
		if files := service.FilesFromMultipart([]*multipart.FileHeader{header}); len(files) > 0 {
			file = &files[0]
		}
	}

	resource, err := h.service.Create(requestContext(c), lessonID, payload, file, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "resource created", resource)
}

func (h *ResourceHandler) uploadURL(c *fiber.Ctx) error {
	lessonID, err := parseUintParam(c, "lessonId")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}

	var payload dto.UploadURLRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, "invalid payload", nil)
	}

	signed, err := h.service.UploadURL(requestContext(c), lessonID, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "upload url issued", signed)
}

func (h *ResourceHandler) addVersion(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}

	var resource dto.ResourceResponse
	if header, fileErr := c.FormFile("file"); fileErr == nil {
		resource, err = h.service.AddVersion(requestContext(c), id, service.FilesFromMultipart([]*multipart.FileHeader{header})[0], activityActorFromContext(c))
	} else {
		var payload dto.ResourceVersionRequest
		if parseErr := c.BodyParser(&payload); parseErr != nil || strings.TrimSpace(payload.UploadKey) == "" {
			return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, "file or upload_key is required", nil)
		}
		resource, err = h.service.AddUploadedVersion(requestContext(c), id, payload, activityActorFromContext(c))
	}
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "resource version added", resource)
}

func (h *ResourceHandler) versions(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}

	versions, err := h.service.Versions(requestContext(c), id, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, versions, "resource versions retrieved", fiber.Map{"total": len(versions)})
}

func (h *ResourceHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}

	report, err := h.service.Delete(requestContext(c), id, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "resource deleted", report)
}

func (h *ResourceHandler) download(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}

	var version *int
	if raw := strings.TrimSpace(c.Query("version")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, "invalid version", nil)
		}
		version = &parsed
	}

	signed, err := h.service.DownloadURL(requestContext(c), id, version, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "download url issued", signed)
}
