package auth

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/recyclables-api/internal/middleware"
)

// SetupRoutes регистрирует маршруты в Fiber
func (s *AuthService) SetupRoutes(app *fiber.App) {
	app.Post("/api/auth/telegram", s.TelegramAuthHandler)

	// Защищенные маршруты
	app.Get("/api/profile", s.GetProfile, middleware.AuthMiddleware(s.jwtService))
}
