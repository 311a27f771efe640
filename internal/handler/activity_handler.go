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

// ActivityHandler exposes the audit trail to admins.
type ActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(service service.ActivityService, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register attaches activity log routes to the router group.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("/admin/activities", middleware.RequireRole(models.RoleAdmin), h.list)
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}
	if pageSize > 200 {
		pageSize = 200
	}
	actorID, err := parseQueryUint(c, "actor_id")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}
	entityID, err := parseQueryUint(c, "entity_id")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}

	from, err := parseQueryTime(c, "from")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}
	to, err := parseQueryTime(c, "to")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}

	req := dto.ActivityListRequest{
		Page:       page,
		PageSize:   pageSize,
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
		From:       from,
		To:         to,
	}
	if actorID != nil {
		req.ActorID = *actorID
	}
	if entityID != nil {
		req.EntityID = *entityID
	}

	response, err := h.service.List(requestContext(c), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, response.Items, "activity logs retrieved", response.Pagination)
}
