package recyclable

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/rajivgeraev/recyclables-api/internal/config"
	mock_database "github.com/rajivgeraev/recyclables-api/internal/db/mocks"
	"github.com/rajivgeraev/recyclables-api/internal/models"
	"github.com/rajivgeraev/recyclables-api/internal/query"
	"github.com/rajivgeraev/recyclables-api/internal/store"
)

type countingInvalidator struct{ calls atomic.Int32 }

func (c *countingInvalidator) Invalidate() { c.calls.Add(1) }

func newTestManager(t *testing.T, opts ...ManagerOption) (*Manager, *store.MemoryStore, *countingInvalidator) {
	t.Helper()
	st := store.NewMemoryStore(nil)
	inv := &countingInvalidator{}
	opts = append([]ManagerOption{WithInvalidator(inv)}, opts...)
	return NewManager(st, zap.NewNop(), opts...), st, inv
}

func bottles() models.CreateRecyclableInput {
	return models.CreateRecyclableInput{
		Title:        "Clean Bottles",
		Category:     models.CategoryPlastic,
		BottleSize:   "1.5 liter",
		Quantity:     10,
		PricePerUnit: decimal.NewFromInt(50),
	}
}

func TestManager_CreateListing(t *testing.T) {
	m, st, inv := newTestManager(t)
	owner := uuid.New()

	listing, err := m.CreateListing(context.Background(), owner, bottles())
	require.NoError(t, err)

	require.NotNil(t, listing.TotalPrice)
	assert.True(t, decimal.NewFromInt(500).Equal(*listing.TotalPrice))
	assert.Equal(t, models.StatusAvailable, listing.Status)
	assert.True(t, listing.IsNegotiable)
	assert.Equal(t, owner, listing.UserID)
	assert.Equal(t, int32(1), inv.calls.Load())

	stored, err := st.GetByID(context.Background(), listing.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, decimal.NewFromInt(500).Equal(stored.EffectiveTotal()))
}

func TestManager_CreateListingExplicitTotal(t *testing.T) {
	m, _, _ := newTestManager(t)
	input := bottles()
	total := decimal.RequireFromString("450.555")
	input.TotalPrice = &total

	listing, err := m.CreateListing(context.Background(), uuid.New(), input)
	require.NoError(t, err)
	assert.Equal(t, "450.56", listing.TotalPrice.StringFixed(2))
}

func TestManager_CreateListingWithoutIdentity(t *testing.T) {
	m, st, inv := newTestManager(t)

	_, err := m.CreateListing(context.Background(), uuid.Nil, bottles())
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	all, err := st.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Zero(t, inv.calls.Load())
}

func TestManager_CreateListingValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.CreateRecyclableInput)
		field   string
		message string
	}{
		{"пустое название", func(in *models.CreateRecyclableInput) { in.Title = "   " }, "title", "Please enter a title"},
		{"нулевое количество", func(in *models.CreateRecyclableInput) { in.Quantity = 0 }, "quantity", "Quantity must be at least 1"},
		{"нулевая цена", func(in *models.CreateRecyclableInput) { in.PricePerUnit = decimal.Zero }, "price_per_unit", "Price must be greater than 0"},
		{"отрицательная цена", func(in *models.CreateRecyclableInput) { in.PricePerUnit = decimal.NewFromInt(-1) }, "price_per_unit", "Price must be greater than 0"},
		{"неизвестная категория", func(in *models.CreateRecyclableInput) { in.Category = "wood" }, "category", "Please choose a valid category"},
		{"неизвестный размер", func(in *models.CreateRecyclableInput) { in.BottleSize = "10 liter" }, "bottle_size", "Unknown bottle size"},
		{"кривой URL", func(in *models.CreateRecyclableInput) { in.ImageURL = "not a url" }, "image_url", "Image URL must be a valid URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, st, _ := newTestManager(t)
			input := bottles()
			tt.mutate(&input)

			_, err := m.CreateListing(context.Background(), uuid.New(), input)
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.message, verr.Message)

			all, err := st.ListAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all, "при ошибке проверки хранилище не трогаем")
		})
	}
}

func TestManager_CreateListingDropsBottleSizeForOtherCategories(t *testing.T) {
	m, _, _ := newTestManager(t)
	input := bottles()
	input.Category = models.CategoryMetal
	input.BottleSize = "not even valid"

	listing, err := m.CreateListing(context.Background(), uuid.New(), input)
	require.NoError(t, err)
	assert.Empty(t, listing.BottleSize)
}

func TestManager_StoreFailureSurfaces(t *testing.T) {
	ctrl := gomock.NewController(t)
	database := mock_database.NewMockDB(ctrl)
	boom := errors.New("connection reset")
	database.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), anyArgs(13)...).Return(boom)

	m := NewManager(store.NewPostgresStore(database), zap.NewNop())
	_, err := m.CreateListing(context.Background(), uuid.New(), bottles())

	var serr *models.StoreError
	require.ErrorAs(t, err, &serr)
	assert.ErrorIs(t, err, boom)
}

func TestManager_ComputeTotalProperty(t *testing.T) {
	m, _, _ := newTestManager(t)
	rapid.Check(t, func(rt *rapid.T) {
		qty := rapid.IntRange(1, 100000).Draw(rt, "qty")
		cents := rapid.Int64Range(1, 10_000_000).Draw(rt, "cents")
		price := decimal.New(cents, -2)

		total := m.ComputeTotal(qty, price, nil)
		assert.True(rt, price.Mul(decimal.NewFromInt(int64(qty))).Equal(total))
		assert.False(rt, total.IsNegative())
	})
}

func TestManager_UpdateListing(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	owner := uuid.New()
	listing, err := m.CreateListing(ctx, owner, bottles())
	require.NoError(t, err)

	qty := 4
	updated, err := m.UpdateListing(ctx, owner, listing.ID, models.UpdateRecyclableInput{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Quantity)
	assert.True(t, decimal.NewFromInt(200).Equal(*updated.TotalPrice), "итог пересчитан")

	category := models.CategoryPaper
	updated, err = m.UpdateListing(ctx, owner, listing.ID, models.UpdateRecyclableInput{Category: &category})
	require.NoError(t, err)
	assert.Equal(t, models.CategoryPaper, updated.Category)
	assert.Empty(t, updated.BottleSize)

	_, err = m.UpdateListing(ctx, uuid.New(), listing.ID, models.UpdateRecyclableInput{Quantity: &qty})
	assert.ErrorIs(t, err, models.ErrForbidden)

	zero := 0
	_, err = m.UpdateListing(ctx, owner, listing.ID, models.UpdateRecyclableInput{Quantity: &zero})
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = m.UpdateListing(ctx, owner, uuid.New(), models.UpdateRecyclableInput{Quantity: &qty})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = m.UpdateListing(ctx, uuid.Nil, listing.ID, models.UpdateRecyclableInput{Quantity: &qty})
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestManager_DeleteListing(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()
	owner := uuid.New()
	listing, err := m.CreateListing(ctx, owner, bottles())
	require.NoError(t, err)

	assert.ErrorIs(t, m.DeleteListing(ctx, uuid.New(), listing.ID), models.ErrForbidden)
	require.NoError(t, m.DeleteListing(ctx, owner, listing.ID))

	got, err := st.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, m.DeleteListing(ctx, owner, listing.ID), models.ErrNotFound)
}

func TestManager_SetStatusPermissive(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()
	owner := uuid.New()
	listing, err := m.CreateListing(ctx, owner, bottles())
	require.NoError(t, err)

	require.NoError(t, m.SetStatus(ctx, owner, listing.ID, models.StatusSold))
	// без таблицы переходов разрешено все, в том числе возврат из sold
	require.NoError(t, m.SetStatus(ctx, owner, listing.ID, models.StatusAvailable))

	got, err := st.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, got.Status)

	var verr *models.ValidationError
	assert.ErrorAs(t, m.SetStatus(ctx, owner, listing.ID, "archived"), &verr)
	assert.ErrorIs(t, m.SetStatus(ctx, uuid.New(), listing.ID, models.StatusSold), models.ErrForbidden)
}

func TestManager_SetStatusConfiguredTable(t *testing.T) {
	cfg := &config.Config{ListingTransitions: "available:reserved,sold;reserved:available,sold;sold:"}
	opts, err := TransitionOptions(cfg)
	require.NoError(t, err)

	m, st, _ := newTestManager(t, opts...)
	ctx := context.Background()
	owner := uuid.New()
	listing, err := m.CreateListing(ctx, owner, bottles())
	require.NoError(t, err)

	require.NoError(t, m.SetStatus(ctx, owner, listing.ID, models.StatusSold))

	err = m.SetStatus(ctx, owner, listing.ID, models.StatusAvailable)
	var terr *models.TransitionError
	require.ErrorAs(t, err, &terr)

	got, err := st.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSold, got.Status)
}

// interleavingStore выполняет чужую запись между чтением статуса и условной записью
type interleavingStore struct {
	store.Store
	beforeWrite func()
}

func (s *interleavingStore) SetStatus(ctx context.Context, id uuid.UUID, from, to models.RecyclableStatus) error {
	if s.beforeWrite != nil {
		s.beforeWrite()
		s.beforeWrite = nil
	}
	return s.Store.SetStatus(ctx, id, from, to)
}

func (s *interleavingStore) SetOrderStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) error {
	if s.beforeWrite != nil {
		s.beforeWrite()
		s.beforeWrite = nil
	}
	return s.Store.SetOrderStatus(ctx, id, from, to)
}

func TestManager_SetStatusConcurrentWriteKeepsTable(t *testing.T) {
	opts, err := TransitionOptions(&config.Config{ListingTransitions: "available:sold,removed;sold:;removed:"})
	require.NoError(t, err)

	ctx := context.Background()
	mem := store.NewMemoryStore(nil)
	st := &interleavingStore{Store: mem}
	m := NewManager(st, zap.NewNop(), opts...)

	owner := uuid.New()
	listing, err := m.CreateListing(ctx, owner, bottles())
	require.NoError(t, err)

	st.beforeWrite = func() {
		require.NoError(t, mem.SetStatus(ctx, listing.ID, models.StatusAvailable, models.StatusSold))
	}

	err = m.SetStatus(ctx, owner, listing.ID, models.StatusRemoved)
	assert.ErrorIs(t, err, models.ErrStatusChanged)

	got, err := mem.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSold, got.Status)
}

func TestManager_SetOrderStatusConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore(nil)
	st := &interleavingStore{Store: mem}
	m := NewManager(st, zap.NewNop())

	seller, buyer := uuid.New(), uuid.New()
	listing, err := m.CreateListing(ctx, seller, bottles())
	require.NoError(t, err)
	order, err := m.PlaceOrder(ctx, buyer, models.CreateOrderInput{
		RecyclableID: listing.ID, SellerID: seller, QuantityOrdered: 4, TotalAmount: decimal.NewFromInt(200),
	})
	require.NoError(t, err)

	// покупатель и продавец отменяют одновременно: количество возвращается один раз
	st.beforeWrite = func() {
		require.NoError(t, mem.SetOrderStatus(ctx, order.ID, models.OrderPending, models.OrderCancelled))
	}
	err = m.SetOrderStatus(ctx, seller, order.ID, models.OrderCancelled)
	assert.ErrorIs(t, err, models.ErrStatusChanged)

	got, err := mem.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity)
}

func TestTransitionOptions_InvalidConfig(t *testing.T) {
	_, err := TransitionOptions(&config.Config{OrderTransitions: "pending:shipped"})
	assert.Error(t, err)
}

func TestManager_PlaceOrder(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()
	seller := uuid.New()
	buyer := uuid.New()
	listing, err := m.CreateListing(ctx, seller, bottles())
	require.NoError(t, err)

	order, err := m.PlaceOrder(ctx, buyer, models.CreateOrderInput{
		RecyclableID:    listing.ID,
		SellerID:        seller,
		QuantityOrdered: 3,
		TotalAmount:     decimal.NewFromInt(150),
		BuyerNotes:      "  pick up tomorrow ",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, buyer, order.BuyerID)
	assert.Equal(t, "pick up tomorrow", order.BuyerNotes)

	got, err := st.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Quantity)
	assert.Equal(t, models.StatusAvailable, got.Status)

	orders, err := m.ListOrders(ctx, seller)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestManager_PlaceOrderKeepsTotalsConsistent(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()
	seller, buyer := uuid.New(), uuid.New()
	listing, err := m.CreateListing(ctx, seller, bottles())
	require.NoError(t, err)

	place := func(n int) {
		t.Helper()
		_, err := m.PlaceOrder(ctx, buyer, models.CreateOrderInput{
			RecyclableID:    listing.ID,
			SellerID:        seller,
			QuantityOrdered: n,
			TotalAmount:     decimal.NewFromInt(int64(50 * n)),
		})
		require.NoError(t, err)
	}

	place(4)
	got, err := st.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Quantity)
	assert.True(t, decimal.NewFromInt(300).Equal(got.EffectiveTotal()), "total = %s", got.EffectiveTotal())

	all, err := st.ListAll(ctx)
	require.NoError(t, err)
	stats := query.Stats(all)
	assert.Equal(t, 1, stats.Available)
	assert.True(t, decimal.NewFromInt(300).Equal(stats.AvailableValue), "available_value = %s", stats.AvailableValue)

	place(6)
	got, err = st.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Quantity)
	assert.Equal(t, models.StatusSold, got.Status)

	all, err = st.ListAll(ctx)
	require.NoError(t, err)
	stats = query.Stats(all)
	assert.Equal(t, 0, stats.Available)
	assert.True(t, stats.AvailableValue.IsZero())
}

func TestManager_CancelOrderReturnsQuantity(t *testing.T) {
	m, st, inv := newTestManager(t)
	ctx := context.Background()
	seller, buyer := uuid.New(), uuid.New()
	listing, err := m.CreateListing(ctx, seller, bottles())
	require.NoError(t, err)

	order, err := m.PlaceOrder(ctx, buyer, models.CreateOrderInput{
		RecyclableID: listing.ID, SellerID: seller, QuantityOrdered: 10, TotalAmount: decimal.NewFromInt(500),
	})
	require.NoError(t, err)

	before := inv.calls.Load()
	require.NoError(t, m.SetOrderStatus(ctx, buyer, order.ID, models.OrderCancelled))
	assert.Greater(t, inv.calls.Load(), before)

	got, err := st.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity)
	assert.Equal(t, models.StatusAvailable, got.Status)

	_, err = m.PlaceOrder(ctx, uuid.New(), models.CreateOrderInput{
		RecyclableID: listing.ID, SellerID: seller, QuantityOrdered: 1, TotalAmount: decimal.NewFromInt(50),
	})
	assert.NoError(t, err)
}

func TestManager_PlaceOrderRejections(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	seller := uuid.New()
	buyer := uuid.New()
	listing, err := m.CreateListing(ctx, seller, bottles())
	require.NoError(t, err)
	sold, err := m.CreateListing(ctx, seller, bottles())
	require.NoError(t, err)
	require.NoError(t, m.SetStatus(ctx, seller, sold.ID, models.StatusSold))

	valid := func() models.CreateOrderInput {
		return models.CreateOrderInput{
			RecyclableID:    listing.ID,
			SellerID:        seller,
			QuantityOrdered: 1,
			TotalAmount:     decimal.NewFromInt(50),
		}
	}

	var verr *models.ValidationError

	_, err = m.PlaceOrder(ctx, uuid.Nil, valid())
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	in := valid()
	in.QuantityOrdered = 0
	_, err = m.PlaceOrder(ctx, buyer, in)
	assert.ErrorAs(t, err, &verr)

	in = valid()
	in.TotalAmount = decimal.NewFromInt(-1)
	_, err = m.PlaceOrder(ctx, buyer, in)
	assert.ErrorAs(t, err, &verr)

	_, err = m.PlaceOrder(ctx, seller, valid())
	assert.ErrorAs(t, err, &verr, "нельзя заказать свое объявление")

	in = valid()
	in.SellerID = uuid.New()
	_, err = m.PlaceOrder(ctx, buyer, in)
	assert.ErrorAs(t, err, &verr, "продавец должен совпадать с владельцем")

	in = valid()
	in.RecyclableID = uuid.New()
	_, err = m.PlaceOrder(ctx, buyer, in)
	assert.ErrorIs(t, err, models.ErrNotFound)

	in = valid()
	in.RecyclableID = sold.ID
	_, err = m.PlaceOrder(ctx, buyer, in)
	assert.ErrorIs(t, err, models.ErrListingUnavailable)

	in = valid()
	in.QuantityOrdered = 11
	_, err = m.PlaceOrder(ctx, buyer, in)
	assert.ErrorIs(t, err, models.ErrInsufficientQuantity)
}

func TestManager_ConcurrentOrdersNeverOverbook(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()
	seller := uuid.New()
	listing, err := m.CreateListing(ctx, seller, bottles())
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		placed atomic.Int32
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.PlaceOrder(ctx, uuid.New(), models.CreateOrderInput{
				RecyclableID:    listing.ID,
				SellerID:        seller,
				QuantityOrdered: 1,
				TotalAmount:     decimal.NewFromInt(50),
			})
			if err == nil {
				placed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), placed.Load())
	got, err := st.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Quantity)
}

func TestManager_SetOrderStatus(t *testing.T) {
	cfg := &config.Config{OrderTransitions: "pending:confirmed,cancelled;confirmed:completed,cancelled"}
	opts, err := TransitionOptions(cfg)
	require.NoError(t, err)

	m, _, _ := newTestManager(t, opts...)
	ctx := context.Background()
	seller := uuid.New()
	buyer := uuid.New()
	listing, err := m.CreateListing(ctx, seller, bottles())
	require.NoError(t, err)
	order, err := m.PlaceOrder(ctx, buyer, models.CreateOrderInput{
		RecyclableID: listing.ID, SellerID: seller, QuantityOrdered: 2, TotalAmount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, m.SetOrderStatus(ctx, uuid.New(), order.ID, models.OrderConfirmed), models.ErrForbidden)
	require.NoError(t, m.SetOrderStatus(ctx, seller, order.ID, models.OrderConfirmed))
	require.NoError(t, m.SetOrderStatus(ctx, buyer, order.ID, models.OrderCompleted))

	var terr *models.TransitionError
	assert.ErrorAs(t, m.SetOrderStatus(ctx, buyer, order.ID, models.OrderPending), &terr)
	assert.ErrorIs(t, m.SetOrderStatus(ctx, buyer, uuid.New(), models.OrderCancelled), models.ErrNotFound)
}

func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = gomock.Any()
	}
	return out
}
