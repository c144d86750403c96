package store

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/recyclables-api/internal/models"
	"github.com/rajivgeraev/recyclables-api/internal/realtime"
)

type listingEntry struct {
	listing models.Recyclable
	seq     int64
}

type orderEntry struct {
	order models.RecyclableOrder
	seq   int64
}

// MemoryStore хранилище в памяти процесса (STORAGE=memory).
// Каждая запись публикует событие в LocalHub, как это делает триггер в PostgreSQL.
type MemoryStore struct {
	mu         sync.RWMutex
	listings   map[uuid.UUID]listingEntry
	orders     map[uuid.UUID]orderEntry
	profiles   map[uuid.UUID]models.Profile
	byTelegram map[int64]uuid.UUID
	seq        int64

	hub *realtime.LocalHub
	now func() time.Time
}

// NewMemoryStore создает пустое хранилище; hub может быть nil
func NewMemoryStore(hub *realtime.LocalHub) *MemoryStore {
	return &MemoryStore{
		listings:   make(map[uuid.UUID]listingEntry),
		orders:     make(map[uuid.UUID]orderEntry),
		profiles:   make(map[uuid.UUID]models.Profile),
		byTelegram: make(map[int64]uuid.UUID),
		hub:        hub,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]models.Recyclable, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.WrapStoreError("recyclables.list_all", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedListings(func(models.Recyclable) bool { return true }), nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Recyclable, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.WrapStoreError("recyclables.get", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.listings[id]
	if !ok {
		return nil, nil
	}
	listing := s.enrich(entry.listing)
	return &listing, nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Recyclable, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.WrapStoreError("recyclables.list_by_owner", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedListings(func(r models.Recyclable) bool { return r.UserID == ownerID }), nil
}

func (s *MemoryStore) Create(ctx context.Context, ownerID uuid.UUID, input models.CreateRecyclableInput) (*models.Recyclable, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.WrapStoreError("recyclables.create", err)
	}

	now := s.now()
	listing := models.Recyclable{
		ID:           uuid.New(),
		UserID:       ownerID,
		Title:        input.Title,
		Description:  input.Description,
		Category:     input.Category,
		BottleSize:   input.BottleSize,
		Quantity:     input.Quantity,
		PricePerUnit: input.PricePerUnit,
		TotalPrice:   cloneDecimal(input.TotalPrice),
		ImageURL:     input.ImageURL,
		Location:     cloneLocation(input.Location),
		Status:       models.StatusAvailable,
		IsNegotiable: negotiable(input),
		ContactPhone: input.ContactPhone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	s.seq++
	s.listings[listing.ID] = listingEntry{listing: listing, seq: s.seq}
	out := s.enrich(listing)
	s.mu.Unlock()

	s.publish(realtime.EventInsert, &listing, nil)
	return &out, nil
}

func (s *MemoryStore) Update(ctx context.Context, id uuid.UUID, input models.UpdateRecyclableInput) (*models.Recyclable, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.WrapStoreError("recyclables.update", err)
	}

	s.mu.Lock()
	entry, ok := s.listings[id]
	if !ok {
		s.mu.Unlock()
		return nil, models.ErrNotFound
	}
	if input.IsEmpty() {
		out := s.enrich(entry.listing)
		s.mu.Unlock()
		return &out, nil
	}

	old := entry.listing
	updated := input.Apply(cloneListing(old))
	if updated.Location.IsZero() {
		updated.Location = nil
	}
	updated.UpdatedAt = s.now()
	entry.listing = updated
	s.listings[id] = entry
	out := s.enrich(updated)
	s.mu.Unlock()

	s.publish(realtime.EventUpdate, &updated, &old)
	return &out, nil
}

// Delete удаляет объявление; отсутствующий id не ошибка
func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return models.WrapStoreError("recyclables.delete", err)
	}

	s.mu.Lock()
	entry, ok := s.listings[id]
	delete(s.listings, id)
	s.mu.Unlock()

	if ok {
		s.publish(realtime.EventDelete, nil, &entry.listing)
	}
	return nil
}

// SetStatus меняет статус, только если текущий равен from
func (s *MemoryStore) SetStatus(ctx context.Context, id uuid.UUID, from, to models.RecyclableStatus) error {
	if err := ctx.Err(); err != nil {
		return models.WrapStoreError("recyclables.set_status", err)
	}

	s.mu.Lock()
	entry, ok := s.listings[id]
	if !ok {
		s.mu.Unlock()
		return models.ErrNotFound
	}
	if entry.listing.Status != from {
		s.mu.Unlock()
		return models.ErrStatusChanged
	}
	old := entry.listing
	entry.listing.Status = to
	entry.listing.UpdatedAt = s.now()
	s.listings[id] = entry
	updated := entry.listing
	s.mu.Unlock()

	s.publish(realtime.EventUpdate, &updated, &old)
	return nil
}

// CreateOrder проверяет и списывает количество под одной блокировкой
func (s *MemoryStore) CreateOrder(ctx context.Context, buyerID uuid.UUID, input models.CreateOrderInput) (*models.RecyclableOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.WrapStoreError("orders.create", err)
	}

	s.mu.Lock()
	entry, ok := s.listings[input.RecyclableID]
	if !ok {
		s.mu.Unlock()
		return nil, models.ErrNotFound
	}

	now := s.now()
	old := cloneListing(entry.listing)
	if err := reserve(&entry.listing, input.QuantityOrdered); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	entry.listing.UpdatedAt = now
	s.listings[input.RecyclableID] = entry
	updated := entry.listing

	order := models.RecyclableOrder{
		ID:              uuid.New(),
		RecyclableID:    input.RecyclableID,
		BuyerID:         buyerID,
		SellerID:        input.SellerID,
		QuantityOrdered: input.QuantityOrdered,
		TotalAmount:     input.TotalAmount,
		Status:          models.OrderPending,
		BuyerNotes:      input.BuyerNotes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.seq++
	s.orders[order.ID] = orderEntry{order: order, seq: s.seq}
	out := s.enrichOrder(order, false)
	s.mu.Unlock()

	s.publish(realtime.EventUpdate, &updated, &old)
	return &out, nil
}

func (s *MemoryStore) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.RecyclableOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.WrapStoreError("orders.get", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	order := s.enrichOrder(entry.order, false)
	return &order, nil
}

func (s *MemoryStore) ListOrdersForUser(ctx context.Context, userID uuid.UUID) ([]models.RecyclableOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.WrapStoreError("orders.list_for_user", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]orderEntry, 0)
	for _, entry := range s.orders {
		if entry.order.BuyerID == userID || entry.order.SellerID == userID {
			entries = append(entries, entry)
		}
	}
	slices.SortFunc(entries, func(a, b orderEntry) int {
		if c := b.order.CreatedAt.Compare(a.order.CreatedAt); c != 0 {
			return c
		}
		return int(b.seq - a.seq)
	})

	orders := make([]models.RecyclableOrder, 0, len(entries))
	for _, entry := range entries {
		orders = append(orders, s.enrichOrder(entry.order, true))
	}
	return orders, nil
}

// SetOrderStatus меняет статус заказа, если текущий равен from, и двигает остаток объявления
func (s *MemoryStore) SetOrderStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) error {
	if err := ctx.Err(); err != nil {
		return models.WrapStoreError("orders.set_status", err)
	}

	s.mu.Lock()
	entry, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		return models.ErrNotFound
	}
	if entry.order.Status != from {
		s.mu.Unlock()
		return models.ErrStatusChanged
	}

	now := s.now()
	var old, updated *models.Recyclable
	if dir := restockDirection(from, to); dir != 0 {
		if listing, ok := s.listings[entry.order.RecyclableID]; ok {
			before := cloneListing(listing.listing)
			if dir > 0 {
				restock(&listing.listing, entry.order.QuantityOrdered)
			} else if err := reserve(&listing.listing, entry.order.QuantityOrdered); err != nil {
				s.mu.Unlock()
				return err
			}
			listing.listing.UpdatedAt = now
			s.listings[entry.order.RecyclableID] = listing
			after := listing.listing
			old, updated = &before, &after
		}
	}

	entry.order.Status = to
	entry.order.UpdatedAt = now
	s.orders[id] = entry
	s.mu.Unlock()

	if updated != nil {
		s.publish(realtime.EventUpdate, updated, old)
	}
	return nil
}

func (s *MemoryStore) UpsertTelegramProfile(ctx context.Context, input models.TelegramProfileInput) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.WrapStoreError("profiles.upsert", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id, ok := s.byTelegram[input.TelegramID]; ok {
		profile := s.profiles[id]
		profile.FullName = input.FullName()
		if avatar := input.AvatarURL(); avatar != nil {
			profile.AvatarURL = avatar
		}
		profile.UpdatedAt = now
		s.profiles[id] = profile
		return &profile, nil
	}

	profile := models.Profile{
		ID:         uuid.New(),
		TelegramID: input.TelegramID,
		FullName:   input.FullName(),
		AvatarURL:  input.AvatarURL(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.profiles[profile.ID] = profile
	s.byTelegram[input.TelegramID] = profile.ID
	return &profile, nil
}

func (s *MemoryStore) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.WrapStoreError("profiles.get", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[id]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

// PutProfile кладет профиль как есть; нужен для демо-данных и тестов
func (s *MemoryStore) PutProfile(profile models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[profile.ID] = profile
	if profile.TelegramID != 0 {
		s.byTelegram[profile.TelegramID] = profile.ID
	}
}

// sortedListings вызывается под блокировкой
func (s *MemoryStore) sortedListings(keep func(models.Recyclable) bool) []models.Recyclable {
	entries := make([]listingEntry, 0, len(s.listings))
	for _, entry := range s.listings {
		if keep(entry.listing) {
			entries = append(entries, entry)
		}
	}
	slices.SortFunc(entries, func(a, b listingEntry) int {
		if c := b.listing.CreatedAt.Compare(a.listing.CreatedAt); c != 0 {
			return c
		}
		return int(b.seq - a.seq)
	})

	out := make([]models.Recyclable, 0, len(entries))
	for _, entry := range entries {
		out = append(out, s.enrich(entry.listing))
	}
	return out
}

// enrich копирует объявление и подставляет снимок профиля владельца; вызывается под блокировкой
func (s *MemoryStore) enrich(listing models.Recyclable) models.Recyclable {
	out := cloneListing(listing)
	if profile, ok := s.profiles[listing.UserID]; ok {
		out.UserProfile = profile.Snapshot()
	}
	return out
}

func (s *MemoryStore) enrichOrder(order models.RecyclableOrder, withListing bool) models.RecyclableOrder {
	if profile, ok := s.profiles[order.BuyerID]; ok {
		order.BuyerProfile = profile.Snapshot()
	}
	if profile, ok := s.profiles[order.SellerID]; ok {
		order.SellerProfile = profile.Snapshot()
	}
	if withListing {
		if entry, ok := s.listings[order.RecyclableID]; ok {
			listing := s.enrich(entry.listing)
			order.Recyclable = &listing
		}
	}
	return order
}

func (s *MemoryStore) publish(typ realtime.EventType, record, old *models.Recyclable) {
	if s.hub == nil {
		return
	}
	ev := realtime.Event{
		Type:            typ,
		Schema:          "memory",
		Table:           realtime.ListingsTable,
		CommitTimestamp: s.now(),
	}
	if record != nil {
		ev.Record, _ = json.Marshal(record)
	}
	if old != nil {
		ev.OldRecord, _ = json.Marshal(old)
	}
	s.hub.Publish(ev)
}

// reserve списывает n единиц; вызывается под блокировкой
func reserve(listing *models.Recyclable, n int) error {
	switch {
	case listing.Status != models.StatusAvailable:
		return models.ErrListingUnavailable
	case listing.Quantity < n:
		return models.ErrInsufficientQuantity
	}
	listing.Quantity -= n
	total := models.ComputeTotal(listing.Quantity, listing.PricePerUnit)
	listing.TotalPrice = &total
	if listing.Quantity == 0 {
		listing.Status = models.StatusSold
	}
	return nil
}

// restock возвращает n единиц; распроданное объявление снова available
func restock(listing *models.Recyclable, n int) {
	if listing.Status == models.StatusSold && listing.Quantity == 0 {
		listing.Status = models.StatusAvailable
	}
	listing.Quantity += n
	total := models.ComputeTotal(listing.Quantity, listing.PricePerUnit)
	listing.TotalPrice = &total
}

func cloneListing(r models.Recyclable) models.Recyclable {
	r.TotalPrice = cloneDecimal(r.TotalPrice)
	r.Location = cloneLocation(r.Location)
	r.UserProfile = nil
	return r
}

func cloneLocation(loc *models.Location) *models.Location {
	if loc.IsZero() {
		return nil
	}
	out := *loc
	if loc.Point != nil {
		point := *loc.Point
		out.Point = &point
	}
	return &out
}

var _ Store = (*MemoryStore)(nil)
