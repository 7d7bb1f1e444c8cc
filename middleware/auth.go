// middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts user identity and roles set by Gateway.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		rolesStr := c.Get("X-User-Roles")

		if userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID required but missing: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "missing X-User-ID — request must come through gateway with auth context",
			})
		}

		var roles []string
		if rolesStr != "" {
			for _, r := range strings.Split(rolesStr, ",") {
				r = strings.TrimSpace(r)
				if r != "" {
					roles = append(roles, r)
				}
			}
		}

		// Attach to ctx for handlers
		c.Locals("user_id", userID)
		c.Locals("user_roles", roles)

		return c.Next()
	}
}

// HasStaffRole reports whether the request context carries a staff-grade
// role. Roles are set by UserContextMiddleware.
func HasStaffRole(c *fiber.Ctx) bool {
	roles, _ := c.Locals("user_roles").([]string)
	for _, role := range roles {
		if role == "staff" || role == "admin" {
			return true
		}
	}
	return false
}

// StaffOnly gates verification-workflow and catalog-management routes behind
// the coarse "is staff" check supplied by the auth collaborator.
func StaffOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if HasStaffRole(c) {
			return c.Next()
		}
		log.Printf("🚫 [USER_CTX] staff role required for %s", c.Path())
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "staff role required",
		})
	}
}
