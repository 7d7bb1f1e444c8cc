package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGatedApp() *fiber.App {
	app := fiber.New()
	app.Use(UserContextMiddleware())
	app.Get("/staff-only", StaffOnly(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/whoami", func(c *fiber.Ctx) error {
		if HasStaffRole(c) {
			return c.SendString("staff")
		}
		return c.SendString("member")
	})
	return app
}

func TestUserContextRequiresUserID(t *testing.T) {
	app := newGatedApp()
	resp, err := app.Test(httptest.NewRequest("GET", "/whoami", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestStaffOnlyRejectsMembers(t *testing.T) {
	app := newGatedApp()
	req := httptest.NewRequest("GET", "/staff-only", nil)
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-User-Roles", "member")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

// Both the route guard and the inline check accept staff and admin roles.
func TestStaffRoleGrantsAccess(t *testing.T) {
	app := newGatedApp()
	for _, roles := range []string{"staff", "member, admin"} {
		req := httptest.NewRequest("GET", "/staff-only", nil)
		req.Header.Set("X-User-ID", "user-1")
		req.Header.Set("X-User-Roles", roles)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, "roles=%s", roles)
	}

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("X-User-ID", "user-2")
	req.Header.Set("X-User-Roles", "admin")
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "staff", string(body))
}
