package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/service"
	"github.com/noah-isme/gema-lms-api/internal/utils"
)

// NotificationHandler serves the caller's in-app inbox.
type NotificationHandler struct {
	service service.NotificationService
	logger  zerolog.Logger
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(service service.NotificationService, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("component", "notification_handler").Logger(),
	}
}

// Register binds the inbox routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("/notifications", h.list)
	router.Post("/notifications/read-all", h.markAllRead)
	router.Patch("/notifications/:id/read", h.markRead)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	var req dto.NotificationListRequest
	var err error
	if req.Limit, err = parseQueryInt(c, "limit"); err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}
	if req.Offset, err = parseQueryInt(c, "offset"); err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}
	if req.UnreadOnly, err = parseQueryBool(c, "unread"); err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}

	page, err := h.service.List(requestContext(c), userIDFromContext(c), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, page.Items, "notifications retrieved", fiber.Map{
		"limit":  req.Limit,
		"offset": req.Offset,
		"unread": page.Unread,
	})
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}

	notification, err := h.service.MarkRead(requestContext(c), id, userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "notification marked as read", notification)
}

func (h *NotificationHandler) markAllRead(c *fiber.Ctx) error {
	updated, err := h.service.MarkAllRead(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "notifications marked as read", fiber.Map{"updated": updated})
}
