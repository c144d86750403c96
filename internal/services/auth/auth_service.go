package auth

import (
	"time"

	"github.com/gofiber/fiber/v3"
	initdata "github.com/telegram-mini-apps/init-data-golang"
	"go.uber.org/zap"

	"github.com/rajivgeraev/recyclables-api/internal/config"
	"github.com/rajivgeraev/recyclables-api/internal/middleware"
	"github.com/rajivgeraev/recyclables-api/internal/models"
	"github.com/rajivgeraev/recyclables-api/internal/store"
	"github.com/rajivgeraev/recyclables-api/internal/utils"
)

// initDataTTL срок годности initData от Telegram
const initDataTTL = 24 * time.Hour

// AuthService – структура для обработки авторизации
type AuthService struct {
	cfg        *config.Config
	store      store.Store
	jwtService *utils.JWTService
	logger     *zap.Logger
}

// NewAuthService – конструктор AuthService
func NewAuthService(cfg *config.Config, st store.Store, jwtService *utils.JWTService, logger *zap.Logger) *AuthService {
	return &AuthService{
		cfg:        cfg,
		store:      st,
		jwtService: jwtService,
		logger:     logger,
	}
}

// TelegramAuthHandler проверяет initData, сохраняет профиль, создает JWT и возвращает его
func (s *AuthService) TelegramAuthHandler(c fiber.Ctx) error {
	var payload struct {
		InitData string `json:"init_data"`
	}

	if err := c.Bind().Body(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	// Проверяем initData
	if err := initdata.Validate(payload.InitData, s.cfg.TelegramBotToken, initDataTTL); err != nil {
		s.logger.Debug("initData не прошла проверку", zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid Telegram data"})
	}

	data, err := initdata.Parse(payload.InitData)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to parse initData"})
	}

	profile, err := s.store.UpsertTelegramProfile(c.Context(), models.TelegramProfileInput{
		TelegramID: data.User.ID,
		FirstName:  data.User.FirstName,
		LastName:   data.User.LastName,
		Username:   data.User.Username,
		PhotoURL:   data.User.PhotoURL,
	})
	if err != nil {
		s.logger.Error("Ошибка сохранения профиля", zap.Int64("telegram_id", data.User.ID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save profile"})
	}

	jwtToken, err := s.jwtService.GenerateToken(profile.ID, data.User.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate JWT"})
	}

	s.logger.Info("Пользователь вошел через Telegram",
		zap.String("user_id", profile.ID.String()), zap.Int64("telegram_id", data.User.ID))

	return c.JSON(fiber.Map{
		"token": jwtToken,
		"user":  profile,
	})
}

// GetProfile возвращает профиль текущего пользователя
func (s *AuthService) GetProfile(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	profile, err := s.store.GetProfile(c.Context(), userID)
	if err != nil {
		s.logger.Error("Ошибка получения профиля", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if profile == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Profile not found"})
	}
	return c.JSON(profile)
}
