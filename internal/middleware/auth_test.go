package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"sayan/internal/logger"
	"sayan/internal/models"
	"sayan/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newApp() *fiber.App {
	auth := NewAuthMiddleware(testSecret, logger.NewNop())
	app := fiber.New()
	api := app.Group("/api", auth.Handler)
	api.Get("/me", func(c *fiber.Ctx) error {
		claims, err := utils.GetUserClaims(c)
		if err != nil {
			return err
		}
		return c.SendString(claims.Role)
	})
	api.Post("/withdrawals", HasPermission(models.PermissionWithdrawalWrite), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	api.Post("/admin/reconcile", AdminAuthMiddleware, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func token(t *testing.T, claims *models.UserClaims) string {
	t.Helper()
	tok, err := utils.GenerateToken(testSecret, claims, time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(t *testing.T, app *fiber.App, method, path, auth string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestAuthMiddleware(t *testing.T) {
	app := newApp()
	student := token(t, &models.UserClaims{UserID: 1, Role: models.RoleStudent, StudentID: 4})
	academy := token(t, &models.UserClaims{UserID: 2, Role: models.RoleAcademy, AcademyID: 9, Permissions: []string{models.PermissionWalletRead}})
	admin := token(t, &models.UserClaims{UserID: 3, Role: models.RoleAdmin})

	assert.Equal(t, fiber.StatusUnauthorized, do(t, app, "GET", "/api/me", ""))
	assert.Equal(t, fiber.StatusUnauthorized, do(t, app, "GET", "/api/me", "Token abc"))
	assert.Equal(t, fiber.StatusUnauthorized, do(t, app, "GET", "/api/me", "Bearer abc"))
	assert.Equal(t, fiber.StatusOK, do(t, app, "GET", "/api/me", student))

	// student without a student id cannot act for any wallet
	orphan := token(t, &models.UserClaims{UserID: 5, Role: models.RoleStudent})
	assert.Equal(t, fiber.StatusUnauthorized, do(t, app, "GET", "/api/me", orphan))

	assert.Equal(t, fiber.StatusCreated, do(t, app, "POST", "/api/withdrawals", student))
	assert.Equal(t, fiber.StatusForbidden, do(t, app, "POST", "/api/withdrawals", academy))
	assert.Equal(t, fiber.StatusCreated, do(t, app, "POST", "/api/withdrawals", admin))

	assert.Equal(t, fiber.StatusForbidden, do(t, app, "POST", "/api/admin/reconcile", student))
	assert.Equal(t, fiber.StatusOK, do(t, app, "POST", "/api/admin/reconcile", admin))
}
