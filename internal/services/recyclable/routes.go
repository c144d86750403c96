package recyclable

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/recyclables-api/internal/middleware"
)

// SetupRoutes настраивает маршруты объявлений и заказов
func (s *RecyclableService) SetupRoutes(app *fiber.App) {
	auth := middleware.AuthMiddleware(s.jwtService)

	recyclables := app.Group("/api/recyclables")

	// Публичные маршруты
	recyclables.Get("/", s.ListRecyclables)
	recyclables.Post("/refresh", s.RefreshRecyclables)
	recyclables.Get("/user/:userId", s.GetUserRecyclables)
	recyclables.Get("/:id", s.GetRecyclable)

	// Создание доступно всем, без входа отвечает ссылкой на авторизацию
	recyclables.Post("/", s.CreateRecyclable, middleware.OptionalAuth(s.jwtService))

	// Только для владельца
	recyclables.Put("/:id", s.UpdateRecyclable, auth)
	recyclables.Delete("/:id", s.DeleteRecyclable, auth)
	recyclables.Put("/:id/status", s.SetRecyclableStatus, auth)

	orders := app.Group("/api/orders", auth)
	orders.Post("/", s.PlaceOrder)
	orders.Get("/", s.ListOrders)
	orders.Put("/:id/status", s.SetOrderStatus)
}
