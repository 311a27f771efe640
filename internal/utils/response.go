package utils

import (
	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
)

// APIResponse is the envelope every endpoint answers with. Failures carry a
// stable Code and optional Details; list endpoints add Meta.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Details interface{} `json:"details,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// SendSuccess sends a 200 payload.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return respond(c, fiber.StatusOK, message, data, nil)
}

// SendSuccessWithStatus sends a success payload using the provided HTTP status code.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	return respond(c, status, message, data, nil)
}

// OK sends a 200 payload with pagination or summary metadata.
func OK(c *fiber.Ctx, data interface{}, message string, meta interface{}) error {
	return respond(c, fiber.StatusOK, message, data, meta)
}

// FailWithCode sends an error payload carrying a machine readable code. An
// empty message falls back to the status text.
func FailWithCode(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	if message == "" {
		message = fiberutils.StatusMessage(status)
	}
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Message: message,
		Code:    code,
		Details: details,
	})
}

func respond(c *fiber.Ctx, status int, message string, data, meta interface{}) error {
	if message == "" {
		message = "success"
	}
	return c.Status(status).JSON(APIResponse{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    meta,
	})
}
