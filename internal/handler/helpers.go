package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-lms-api/internal/middleware"
	"github.com/noah-isme/gema-lms-api/internal/service"
	"github.com/noah-isme/gema-lms-api/internal/utils"
	"github.com/noah-isme/gema-lms-api/pkg/storage"
)

// Machine readable error codes carried in the response envelope.
const (
	codeNotFound             = "NOT_FOUND"
	codeUnauthorized         = "UNAUTHORIZED"
	codeNotEnrolled          = "NOT_ENROLLED"
	codeValidationFailed     = "VALIDATION_FAILED"
	codeDeadlinePassed       = "DEADLINE_PASSED"
	codeAlreadyGraded        = "ALREADY_GRADED"
	codeGradeOutOfRange      = "GRADE_OUT_OF_RANGE"
	codeUploadFailed         = "UPLOAD_FAILED"
	codeSigningFailed        = "SIGNING_FAILED"
	codeConfirmationRequired = "CONFIRMATION_REQUIRED"
	codeConflict             = "CONFLICT"
	codeBadRequest           = "BAD_REQUEST"
	codeInternal             = "INTERNAL"
)

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	value := strings.TrimSpace(c.Params(name))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(parsed), nil
}

func parseQueryUint(c *fiber.Ctx, key string) (*uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", key)
	}
	result := uint(parsed)
	return &result, nil
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}

func parseQueryBool(c *fiber.Ctx, key string) (bool, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s flag", key)
	}
	return parsed, nil
}

// parseQueryTime accepts RFC 3339 timestamps.
func parseQueryTime(c *fiber.Ctx, key string) (*time.Time, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s, expected RFC 3339", key)
	}
	return &parsed, nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return strings.ToLower(strings.TrimSpace(role))
		}
	}
	return ""
}

func activityActorFromContext(c *fiber.Ctx) service.ActivityActor {
	return service.ActivityActor{
		ID:   userIDFromContext(c),
		Role: userRoleFromContext(c),
	}
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// respondError maps service and storage errors onto the HTTP error envelope.
// Provider error text is logged, never returned.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	log := requestLogger(logger, c)

	var rejection *service.FileRejectionError
	var confirm *service.ConfirmationRequiredError
	var validationErrors validator.ValidationErrors

	switch {
	case errors.As(err, &validationErrors):
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, "invalid request", validationDetails(validationErrors))
	case errors.As(err, &rejection):
		return utils.FailWithCode(c, fiber.StatusUnprocessableEntity, codeValidationFailed, rejection.Error(), fiber.Map{
			"reason": rejection.Reason,
			"file":   rejection.FileName,
			"limit":  rejection.Limit,
			"actual": rejection.Actual,
		})
	case errors.As(err, &confirm):
		return utils.FailWithCode(c, fiber.StatusConflict, codeConfirmationRequired, confirm.Error(), fiber.Map{
			"count":       confirm.Count,
			"lessons":     confirm.Lessons,
			"resources":   confirm.Resources,
			"submissions": confirm.Submissions,
		})
	case errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrResourceNotFound),
		errors.Is(err, service.ErrLessonNotFound),
		errors.Is(err, service.ErrContentNotFound),
		errors.Is(err, service.ErrAttachmentNotFound),
		errors.Is(err, service.ErrVersionNotFound),
		errors.Is(err, service.ErrUploadNotFound),
		errors.Is(err, service.ErrNotificationNotFound):
		return utils.FailWithCode(c, fiber.StatusNotFound, codeNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrUploadKeyInUse):
		return utils.FailWithCode(c, fiber.StatusConflict, codeConflict, err.Error(), nil)
	case errors.Is(err, service.ErrNotEnrolled):
		return utils.FailWithCode(c, fiber.StatusForbidden, codeNotEnrolled, err.Error(), nil)
	case errors.Is(err, service.ErrUnauthorized), errors.Is(err, service.ErrNotDownloadable):
		return utils.FailWithCode(c, fiber.StatusForbidden, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, service.ErrDeadlinePassed):
		return utils.FailWithCode(c, fiber.StatusConflict, codeDeadlinePassed, err.Error(), nil)
	case errors.Is(err, service.ErrAlreadyGraded):
		return utils.FailWithCode(c, fiber.StatusConflict, codeAlreadyGraded, err.Error(), nil)
	case errors.Is(err, service.ErrGradeOutOfRange):
		return utils.FailWithCode(c, fiber.StatusUnprocessableEntity, codeGradeOutOfRange, err.Error(), nil)
	case errors.Is(err, service.ErrSubmissionConflict):
		return utils.FailWithCode(c, fiber.StatusConflict, codeConflict, err.Error(), nil)
	case errors.Is(err, service.ErrFileRequired),
		errors.Is(err, service.ErrNotFileResource),
		errors.Is(err, service.ErrInvalidResource),
		errors.Is(err, service.ErrUnsupportedContentKind),
		errors.Is(err, service.ErrInvalidActivityFilter),
		errors.Is(err, service.ErrInvalidUploadKey):
		return utils.FailWithCode(c, fiber.StatusBadRequest, codeBadRequest, err.Error(), nil)
	case errors.Is(err, service.ErrDirectUploadUnsupported):
		return utils.FailWithCode(c, fiber.StatusNotImplemented, codeBadRequest, err.Error(), nil)
	case errors.Is(err, storage.ErrUploadFailed):
		logStorageFailure(log, err)
		return utils.FailWithCode(c, fiber.StatusBadGateway, codeUploadFailed, "file storage is unavailable, please try again", nil)
	case errors.Is(err, storage.ErrSigningFailed):
		logStorageFailure(log, err)
		return utils.FailWithCode(c, fiber.StatusBadGateway, codeSigningFailed, "file is temporarily unavailable, please try again", nil)
	default:
		log.Error().Err(err).Msg("internal server error")
		return utils.FailWithCode(c, fiber.StatusInternalServerError, codeInternal, "internal server error", nil)
	}
}

func logStorageFailure(log *zerolog.Logger, err error) {
	event := log.Warn().Err(err)
	var target *storage.Error
	if errors.As(err, &target) {
		event = event.Str("store", target.Store).Str("key", target.Key)
	}
	event.Msg("object store operation failed")
}

func validationDetails(errs validator.ValidationErrors) []fiber.Map {
	details := make([]fiber.Map, 0, len(errs))
	for _, fieldErr := range errs {
		details = append(details, fiber.Map{
			"field": fieldErr.Field(),
			"rule":  fieldErr.Tag(),
		})
	}
	return details
}
