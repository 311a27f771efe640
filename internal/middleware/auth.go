package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-lms-api/internal/utils"
)

const codeUnauthorized = "UNAUTHORIZED"

// RequireUser rejects requests that reached the handler chain without an
// authenticated user id.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch id := c.Locals("user_id").(type) {
		case uint:
			if id > 0 {
				return c.Next()
			}
		case int:
			if id > 0 {
				return c.Next()
			}
		}
		return utils.FailWithCode(c, fiber.StatusUnauthorized, codeUnauthorized, "authentication required", nil)
	}
}

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role := normalizeRoleValue(c.Locals("user_role"))
		if _, ok := allowed[role]; !ok {
			return utils.FailWithCode(c, fiber.StatusForbidden, codeUnauthorized, "insufficient permissions", nil)
		}
		return c.Next()
	}
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		if value == nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
