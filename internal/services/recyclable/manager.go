package recyclable

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rajivgeraev/recyclables-api/internal/config"
	"github.com/rajivgeraev/recyclables-api/internal/metrics"
	"github.com/rajivgeraev/recyclables-api/internal/models"
	"github.com/rajivgeraev/recyclables-api/internal/store"
)

// Invalidator получает сигнал, что набор объявлений устарел
type Invalidator interface {
	Invalidate()
}

// Manager правила жизненного цикла объявлений и заказов поверх хранилища
type Manager struct {
	store              store.Store
	validate           *validator.Validate
	listingTransitions *TransitionTable[models.RecyclableStatus]
	orderTransitions   *TransitionTable[models.OrderStatus]
	feed               Invalidator
	logger             *zap.Logger
}

// ManagerOption настраивает Manager
type ManagerOption func(*Manager)

// WithListingTransitions ограничивает переходы статуса объявления
func WithListingTransitions(t *TransitionTable[models.RecyclableStatus]) ManagerOption {
	return func(m *Manager) { m.listingTransitions = t }
}

// WithOrderTransitions ограничивает переходы статуса заказа
func WithOrderTransitions(t *TransitionTable[models.OrderStatus]) ManagerOption {
	return func(m *Manager) { m.orderTransitions = t }
}

// WithInvalidator подключает ленту, которую нужно перезагрузить после записи
func WithInvalidator(feed Invalidator) ManagerOption {
	return func(m *Manager) { m.feed = feed }
}

func NewManager(st store.Store, logger *zap.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:              st,
		validate:           validator.New(validator.WithRequiredStructEnabled()),
		listingTransitions: PermissiveTable[models.RecyclableStatus]("recyclable"),
		orderTransitions:   PermissiveTable[models.OrderStatus]("order"),
		logger:             logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TransitionOptions собирает таблицы переходов из конфигурации
func TransitionOptions(cfg *config.Config) ([]ManagerOption, error) {
	listing, err := ParseTransitions("recyclable", cfg.ListingTransitions, models.RecyclableStatus.Valid)
	if err != nil {
		return nil, err
	}
	order, err := ParseTransitions("order", cfg.OrderTransitions, models.OrderStatus.Valid)
	if err != nil {
		return nil, err
	}
	return []ManagerOption{WithListingTransitions(listing), WithOrderTransitions(order)}, nil
}

// ComputeTotal возвращает явную сумму, если она задана, иначе quantity × price; результат не отрицательный
func (m *Manager) ComputeTotal(quantity int, price decimal.Decimal, explicit *decimal.Decimal) decimal.Decimal {
	if explicit != nil {
		if explicit.IsNegative() {
			return decimal.Zero
		}
		return explicit.Round(models.MoneyPrecision)
	}
	return models.ComputeTotal(quantity, price)
}

// ValidateCreate проверяет и нормализует данные нового объявления до обращения к хранилищу
func (m *Manager) ValidateCreate(input *models.CreateRecyclableInput) error {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return models.NewValidationError("title", "Please enter a title")
	}
	if input.Quantity < 1 {
		return models.NewValidationError("quantity", "Quantity must be at least 1")
	}
	if !input.PricePerUnit.IsPositive() {
		return models.NewValidationError("price_per_unit", "Price must be greater than 0")
	}
	if input.TotalPrice != nil && input.TotalPrice.IsNegative() {
		return models.NewValidationError("total_price", "Total price cannot be negative")
	}

	// размер бутылки имеет смысл только для пластика и стекла
	if !input.Category.HasBottleSize() {
		input.BottleSize = ""
	}

	if err := m.validate.Struct(input); err != nil {
		return toValidationError(err)
	}
	return nil
}

// validateUpdate проверяет только переданные поля
func (m *Manager) validateUpdate(input *models.UpdateRecyclableInput) error {
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return models.NewValidationError("title", "Please enter a title")
		}
		input.Title = &title
	}
	if input.Quantity != nil && *input.Quantity < 1 {
		return models.NewValidationError("quantity", "Quantity must be at least 1")
	}
	if input.PricePerUnit != nil && !input.PricePerUnit.IsPositive() {
		return models.NewValidationError("price_per_unit", "Price must be greater than 0")
	}
	if input.TotalPrice != nil && input.TotalPrice.IsNegative() {
		return models.NewValidationError("total_price", "Total price cannot be negative")
	}
	if input.Category != nil && !input.Category.Valid() {
		return models.NewValidationError("category", "Please choose a valid category")
	}
	if input.BottleSize != nil && *input.BottleSize != "" && !input.BottleSize.Valid() {
		return models.NewValidationError("bottle_size", "Unknown bottle size")
	}
	if input.ImageURL != nil && *input.ImageURL != "" {
		if err := m.validate.Var(*input.ImageURL, "url"); err != nil {
			return models.NewValidationError("image_url", "Image URL must be a valid URL")
		}
	}
	return nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return models.NewValidationError("", err.Error())
	}

	fe := verrs[0]
	switch fe.Field() {
	case "Category":
		return models.NewValidationError("category", "Please choose a valid category")
	case "BottleSize":
		return models.NewValidationError("bottle_size", "Unknown bottle size")
	case "ImageURL":
		return models.NewValidationError("image_url", "Image URL must be a valid URL")
	case "ContactPhone":
		return models.NewValidationError("contact_phone", "Contact phone is too long")
	case "Title":
		return models.NewValidationError("title", "Please enter a title")
	}
	return models.NewValidationError(strings.ToLower(fe.Field()), fe.Error())
}

// CreateListing создает объявление от имени ownerID.
// Без личности возвращает models.ErrUnauthenticated, ничего не записывая.
func (m *Manager) CreateListing(ctx context.Context, ownerID uuid.UUID, input models.CreateRecyclableInput) (*models.Recyclable, error) {
	if ownerID == uuid.Nil {
		return nil, models.ErrUnauthenticated
	}
	if err := m.ValidateCreate(&input); err != nil {
		return nil, err
	}

	total := m.ComputeTotal(input.Quantity, input.PricePerUnit, input.TotalPrice)
	input.TotalPrice = &total
	if input.IsNegotiable == nil {
		negotiable := true
		input.IsNegotiable = &negotiable
	}

	listing, err := m.store.Create(ctx, ownerID, input)
	if err != nil {
		m.logger.Error("Ошибка создания объявления", zap.String("user_id", ownerID.String()), zap.Error(err))
		return nil, err
	}

	metrics.RecyclablesCreatedTotal.Inc()
	m.invalidate()
	return listing, nil
}

// UpdateListing меняет поля объявления; доступно только владельцу
func (m *Manager) UpdateListing(ctx context.Context, actorID, id uuid.UUID, input models.UpdateRecyclableInput) (*models.Recyclable, error) {
	current, err := m.ownedListing(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if err := m.validateUpdate(&input); err != nil {
		return nil, err
	}

	merged := input.Apply(*current)
	if input.Category != nil && !merged.Category.HasBottleSize() && current.BottleSize != "" {
		cleared := models.BottleSize("")
		input.BottleSize = &cleared
	}
	if input.TotalPrice == nil && (input.Quantity != nil || input.PricePerUnit != nil) {
		total := models.ComputeTotal(merged.Quantity, merged.PricePerUnit)
		input.TotalPrice = &total
	}

	updated, err := m.store.Update(ctx, id, input)
	if err != nil {
		return nil, err
	}
	m.invalidate()
	return updated, nil
}

// DeleteListing удаляет объявление; доступно только владельцу
func (m *Manager) DeleteListing(ctx context.Context, actorID, id uuid.UUID) error {
	if _, err := m.ownedListing(ctx, actorID, id); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.invalidate()
	return nil
}

// SetStatus переводит объявление в новый статус через таблицу переходов
func (m *Manager) SetStatus(ctx context.Context, actorID, id uuid.UUID, status models.RecyclableStatus) error {
	if !status.Valid() {
		return models.NewValidationError("status", "Unknown listing status")
	}
	current, err := m.ownedListing(ctx, actorID, id)
	if err != nil {
		return err
	}
	if err := m.listingTransitions.Check(current.Status, status); err != nil {
		metrics.StatusTransitionsTotal.WithLabelValues("recyclable", "rejected").Inc()
		return err
	}

	if err := m.store.SetStatus(ctx, id, current.Status, status); err != nil {
		if errors.Is(err, models.ErrStatusChanged) {
			metrics.StatusTransitionsTotal.WithLabelValues("recyclable", "conflict").Inc()
		}
		return err
	}

	metrics.StatusTransitionsTotal.WithLabelValues("recyclable", "applied").Inc()
	m.logger.Info("Статус объявления изменен",
		zap.String("id", id.String()), zap.String("from", string(current.Status)), zap.String("to", string(status)))
	m.invalidate()
	return nil
}

// PlaceOrder создает заказ покупателя; количество в объявлении списывается атомарно
func (m *Manager) PlaceOrder(ctx context.Context, buyerID uuid.UUID, input models.CreateOrderInput) (*models.RecyclableOrder, error) {
	order, err := m.placeOrder(ctx, buyerID, input)
	if err != nil {
		metrics.OrdersRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}
	metrics.OrdersPlacedTotal.Inc()
	m.invalidate()
	return order, nil
}

func (m *Manager) placeOrder(ctx context.Context, buyerID uuid.UUID, input models.CreateOrderInput) (*models.RecyclableOrder, error) {
	if buyerID == uuid.Nil {
		return nil, models.ErrUnauthenticated
	}
	if input.RecyclableID == uuid.Nil {
		return nil, models.NewValidationError("recyclable_id", "Listing is required")
	}
	if input.SellerID == uuid.Nil {
		return nil, models.NewValidationError("seller_id", "Seller is required")
	}
	if input.QuantityOrdered < 1 {
		return nil, models.NewValidationError("quantity_ordered", "Quantity must be at least 1")
	}
	if input.TotalAmount.IsNegative() {
		return nil, models.NewValidationError("total_amount", "Total amount cannot be negative")
	}
	if buyerID == input.SellerID {
		return nil, models.NewValidationError("seller_id", "You cannot order your own listing")
	}

	listing, err := m.store.GetByID(ctx, input.RecyclableID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, models.ErrNotFound
	}
	if listing.UserID != input.SellerID {
		return nil, models.NewValidationError("seller_id", "Seller does not match the listing owner")
	}
	if listing.Status != models.StatusAvailable {
		return nil, models.ErrListingUnavailable
	}

	input.TotalAmount = input.TotalAmount.Round(models.MoneyPrecision)
	input.BuyerNotes = strings.TrimSpace(input.BuyerNotes)

	// окончательная проверка количества происходит в хранилище одной операцией
	return m.store.CreateOrder(ctx, buyerID, input)
}

// SetOrderStatus меняет статус заказа; доступно покупателю и продавцу
func (m *Manager) SetOrderStatus(ctx context.Context, actorID, id uuid.UUID, status models.OrderStatus) error {
	if actorID == uuid.Nil {
		return models.ErrUnauthenticated
	}
	if !status.Valid() {
		return models.NewValidationError("status", "Unknown order status")
	}

	order, err := m.store.GetOrderByID(ctx, id)
	if err != nil {
		return err
	}
	if order == nil {
		return models.ErrNotFound
	}
	if order.BuyerID != actorID && order.SellerID != actorID {
		return models.ErrForbidden
	}
	if err := m.orderTransitions.Check(order.Status, status); err != nil {
		metrics.StatusTransitionsTotal.WithLabelValues("order", "rejected").Inc()
		return err
	}

	// остаток объявления меняется в той же записи: отмена возвращает количество
	if err := m.store.SetOrderStatus(ctx, id, order.Status, status); err != nil {
		if errors.Is(err, models.ErrStatusChanged) {
			metrics.StatusTransitionsTotal.WithLabelValues("order", "conflict").Inc()
		}
		return err
	}
	metrics.StatusTransitionsTotal.WithLabelValues("order", "applied").Inc()
	if (order.Status == models.OrderCancelled) != (status == models.OrderCancelled) {
		m.invalidate()
	}
	return nil
}

// ListOrders возвращает заказы, где пользователь участвует
func (m *Manager) ListOrders(ctx context.Context, userID uuid.UUID) ([]models.RecyclableOrder, error) {
	if userID == uuid.Nil {
		return nil, models.ErrUnauthenticated
	}
	return m.store.ListOrdersForUser(ctx, userID)
}

func (m *Manager) ownedListing(ctx context.Context, actorID, id uuid.UUID) (*models.Recyclable, error) {
	if actorID == uuid.Nil {
		return nil, models.ErrUnauthenticated
	}
	listing, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, models.ErrNotFound
	}
	if listing.UserID != actorID {
		return nil, models.ErrForbidden
	}
	return listing, nil
}

func (m *Manager) invalidate() {
	if m.feed != nil {
		m.feed.Invalidate()
	}
}

func rejectReason(err error) string {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, models.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrListingUnavailable):
		return "unavailable"
	case errors.Is(err, models.ErrInsufficientQuantity):
		return "insufficient_quantity"
	default:
		return "store"
	}
}
