package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/recyclables-api/internal/utils"
)

func newTestApp(mw fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Get("/whoami", func(c fiber.Ctx) error {
		return c.SendString(UserID(c).String())
	}, mw)
	return app
}

func call(t *testing.T, app *fiber.App, header string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestAuthMiddleware(t *testing.T) {
	jwtService := utils.NewJWTService("secret")
	app := newTestApp(AuthMiddleware(jwtService))

	id := uuid.New()
	token, err := jwtService.GenerateToken(id, 7)
	require.NoError(t, err)

	status, body := call(t, app, "Bearer "+token)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, id.String(), body)

	for _, header := range []string{"", "Token " + token, "Bearer", "Bearer broken"} {
		status, _ := call(t, app, header)
		assert.Equal(t, fiber.StatusUnauthorized, status, header)
	}
}

func TestOptionalAuth(t *testing.T) {
	jwtService := utils.NewJWTService("secret")
	app := newTestApp(OptionalAuth(jwtService))

	status, body := call(t, app, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, uuid.Nil.String(), body)

	status, body = call(t, app, "Bearer broken")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, uuid.Nil.String(), body)

	id := uuid.New()
	token, err := jwtService.GenerateToken(id, 7)
	require.NoError(t, err)
	_, body = call(t, app, "Bearer "+token)
	assert.Equal(t, id.String(), body)
}
