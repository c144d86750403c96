package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/rajivgeraev/recyclables-api/internal/models"
)

// Store доступ к объявлениям, заказам и профилям.
// Отсутствие записи при чтении одной строки возвращается как (nil, nil);
// прочие сбои оборачиваются в *models.StoreError. Повторов внутри нет.
//
// Заказ резервирует количество: CreateOrder списывает его вместе с пересчетом
// total_price, объявление с нулевым остатком становится sold. Отмена заказа
// возвращает количество, выход заказа из cancelled резервирует его снова.
// Смена статуса условная: если текущий статус уже не from, возвращается
// models.ErrStatusChanged.
type Store interface {
	ListAll(ctx context.Context) ([]models.Recyclable, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recyclable, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Recyclable, error)
	Create(ctx context.Context, ownerID uuid.UUID, input models.CreateRecyclableInput) (*models.Recyclable, error)
	Update(ctx context.Context, id uuid.UUID, input models.UpdateRecyclableInput) (*models.Recyclable, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetStatus(ctx context.Context, id uuid.UUID, from, to models.RecyclableStatus) error

	CreateOrder(ctx context.Context, buyerID uuid.UUID, input models.CreateOrderInput) (*models.RecyclableOrder, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*models.RecyclableOrder, error)
	ListOrdersForUser(ctx context.Context, userID uuid.UUID) ([]models.RecyclableOrder, error)
	SetOrderStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) error

	UpsertTelegramProfile(ctx context.Context, input models.TelegramProfileInput) (*models.Profile, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

func negotiable(input models.CreateRecyclableInput) bool {
	if input.IsNegotiable == nil {
		return true
	}
	return *input.IsNegotiable
}

// restockDirection +1 если переход возвращает количество в объявление,
// -1 если резервирует его снова, 0 если количество не меняется
func restockDirection(from, to models.OrderStatus) int {
	switch {
	case from != models.OrderCancelled && to == models.OrderCancelled:
		return 1
	case from == models.OrderCancelled && to != models.OrderCancelled:
		return -1
	}
	return 0
}
