package recyclable

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/recyclables-api/internal/middleware"
	"github.com/rajivgeraev/recyclables-api/internal/models"
	"github.com/rajivgeraev/recyclables-api/internal/query"
	"github.com/rajivgeraev/recyclables-api/internal/services/feed"
	"github.com/rajivgeraev/recyclables-api/internal/store"
	"github.com/rajivgeraev/recyclables-api/internal/utils"
)

// RecyclableService HTTP-обработчики объявлений и заказов
type RecyclableService struct {
	manager    *Manager
	store      store.Store
	feed       *feed.Feed
	jwtService *utils.JWTService
	logger     *zap.Logger
}

// NewRecyclableService создает новый экземпляр RecyclableService
func NewRecyclableService(manager *Manager, st store.Store, fd *feed.Feed, jwtService *utils.JWTService, logger *zap.Logger) *RecyclableService {
	return &RecyclableService{
		manager:    manager,
		store:      st,
		feed:       fd,
		jwtService: jwtService,
		logger:     logger,
	}
}

// ListRecyclables отдает текущий набор ленты с фильтрами search, category, status, sort
func (s *RecyclableService) ListRecyclables(c fiber.Ctx) error {
	filter := query.ParseFilter(func(key string) string { return c.Query(key) })
	view := s.feed.View(filter)

	resp := fiber.Map{
		"recyclables": view.Listings,
		"stats":       view.Stats,
		"loaded":      view.Loaded,
	}
	if view.Err != nil {
		resp["error"] = view.Err.Error()
	}
	return c.JSON(resp)
}

// RefreshRecyclables перезагружает ленту и отдает полный набор
func (s *RecyclableService) RefreshRecyclables(c fiber.Ctx) error {
	if err := s.feed.Refresh(c.Context()); err != nil {
		s.logger.Error("Ошибка обновления ленты", zap.Error(err))
		return respondError(c, err)
	}
	return s.ListRecyclables(c)
}

// GetRecyclable возвращает одно объявление
func (s *RecyclableService) GetRecyclable(c fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	listing, err := s.store.GetByID(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	if listing == nil {
		return respondError(c, models.ErrNotFound)
	}
	return c.JSON(listing)
}

// GetUserRecyclables возвращает объявления пользователя
func (s *RecyclableService) GetUserRecyclables(c fiber.Ctx) error {
	ownerID, err := parseID(c, "userId")
	if err != nil {
		return respondError(c, err)
	}

	listings, err := s.store.ListByOwner(c.Context(), ownerID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"recyclables": listings})
}

// CreateRecyclable создает объявление; без авторизации отвечает 401 со ссылкой на вход
func (s *RecyclableService) CreateRecyclable(c fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == uuid.Nil {
		return respondError(c, models.ErrUnauthenticated)
	}

	var input models.CreateRecyclableInput
	if err := c.Bind().Body(&input); err != nil {
		s.logger.Debug("Ошибка декодирования тела запроса", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	listing, err := s.manager.CreateListing(c.Context(), userID, input)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(listing)
}

// UpdateRecyclable частично обновляет объявление владельца
func (s *RecyclableService) UpdateRecyclable(c fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var input models.UpdateRecyclableInput
	if err := c.Bind().Body(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	listing, err := s.manager.UpdateListing(c.Context(), middleware.UserID(c), id, input)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(listing)
}

// DeleteRecyclable удаляет объявление владельца
func (s *RecyclableService) DeleteRecyclable(c fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	if err := s.manager.DeleteListing(c.Context(), middleware.UserID(c), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// SetRecyclableStatus меняет статус объявления
func (s *RecyclableService) SetRecyclableStatus(c fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var payload struct {
		Status models.RecyclableStatus `json:"status"`
	}
	if err := c.Bind().Body(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	if err := s.manager.SetStatus(c.Context(), middleware.UserID(c), id, payload.Status); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "status": payload.Status})
}

// PlaceOrder создает заказ от имени текущего пользователя
func (s *RecyclableService) PlaceOrder(c fiber.Ctx) error {
	var input models.CreateOrderInput
	if err := c.Bind().Body(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	order, err := s.manager.PlaceOrder(c.Context(), middleware.UserID(c), input)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// ListOrders возвращает заказы, где пользователь покупатель или продавец
func (s *RecyclableService) ListOrders(c fiber.Ctx) error {
	orders, err := s.manager.ListOrders(c.Context(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"orders": orders})
}

// SetOrderStatus меняет статус заказа
func (s *RecyclableService) SetOrderStatus(c fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var payload struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := c.Bind().Body(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	if err := s.manager.SetOrderStatus(c.Context(), middleware.UserID(c), id, payload.Status); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "status": payload.Status})
}

func parseID(c fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		return uuid.Nil, models.NewValidationError(param, "Invalid ID format")
	}
	return id, nil
}
