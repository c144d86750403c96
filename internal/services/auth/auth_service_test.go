package auth

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rajivgeraev/recyclables-api/internal/config"
	"github.com/rajivgeraev/recyclables-api/internal/models"
	"github.com/rajivgeraev/recyclables-api/internal/store"
	"github.com/rajivgeraev/recyclables-api/internal/utils"
)

func setup(t *testing.T) (*fiber.App, *store.MemoryStore, *utils.JWTService) {
	t.Helper()
	st := store.NewMemoryStore(nil)
	jwtService := utils.NewJWTService("secret")
	svc := NewAuthService(&config.Config{TelegramBotToken: "123:abc"}, st, jwtService, zap.NewNop())

	app := fiber.New()
	svc.SetupRoutes(app)
	return app, st, jwtService
}

func TestTelegramAuth_RejectsUnsignedData(t *testing.T) {
	app, _, _ := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/telegram",
		bytes.NewBufferString(`{"init_data":"user=%7B%22id%22%3A1%7D&auth_date=1&hash=deadbeef"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetProfile(t *testing.T) {
	app, st, jwtService := setup(t)

	id := uuid.New()
	st.PutProfile(models.Profile{ID: id, FullName: "Ada Obi"})
	token, err := jwtService.GenerateToken(id, 99)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stranger, err := jwtService.GenerateToken(uuid.New(), 100)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer "+stranger)
	resp, err = app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
