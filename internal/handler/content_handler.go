package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-lms-api/internal/middleware"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/service"
	"github.com/noah-isme/gema-lms-api/internal/utils"
)

// ContentHandler exposes subtree deletion of courses, modules, lessons and assignments.
type ContentHandler struct {
	service service.ContentDeletionService
	logger  zerolog.Logger
}

// NewContentHandler constructs a content handler.
func NewContentHandler(service service.ContentDeletionService, logger zerolog.Logger) *ContentHandler {
	return &ContentHandler{
		service: service,
		logger:  logger.With().Str("component", "content_handler").Logger(),
	}
}

// Register wires admin content routes.
func (h *ContentHandler) Register(router fiber.Router) {
	router.Delete("/admin/content/:kind/:id", middleware.RequireRole(models.RoleAdmin), h.delete)
}

func (h *ContentHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}

	force, err := parseQueryBool(c, "force")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}

	kind := c.Params("kind")
	report, err := h.service.DeleteSubtree(requestContext(c), kind, id, force, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	if report.FilesFailed > 0 {
		requestLogger(h.logger, c).Warn().
			Str("kind", kind).
			Uint("id", id).
			Int("files_failed", report.FilesFailed).
			Msg("content deleted with orphaned files")
	}

	return utils.SendSuccess(c, "content deleted", report)
}
