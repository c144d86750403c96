package store

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rajivgeraev/recyclables-api/internal/models"
)

type recyclableRow struct {
	ID           uuid.UUID           `db:"id"`
	UserID       uuid.UUID           `db:"user_id"`
	Title        string              `db:"title"`
	Description  *string             `db:"description"`
	Category     string              `db:"category"`
	BottleSize   *string             `db:"bottle_size"`
	Quantity     int                 `db:"quantity"`
	PricePerUnit decimal.Decimal     `db:"price_per_unit"`
	TotalPrice   decimal.NullDecimal `db:"total_price"`
	ImageURL     *string             `db:"image_url"`
	Location     []byte              `db:"location"`
	Status       string              `db:"status"`
	IsNegotiable bool                `db:"is_negotiable"`
	ContactPhone *string             `db:"contact_phone"`
	CreatedAt    time.Time           `db:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at"`

	ProfileFullName  *string `db:"profile_full_name"`
	ProfileEmail     *string `db:"profile_email"`
	ProfileAvatarURL *string `db:"profile_avatar_url"`
	ProfilePhone     *string `db:"profile_phone"`
}

func (r recyclableRow) toModel() models.Recyclable {
	out := models.Recyclable{
		ID:           r.ID,
		UserID:       r.UserID,
		Title:        r.Title,
		Description:  deref(r.Description),
		Category:     models.RecyclableCategory(r.Category),
		BottleSize:   models.BottleSize(deref(r.BottleSize)),
		Quantity:     r.Quantity,
		PricePerUnit: r.PricePerUnit,
		ImageURL:     deref(r.ImageURL),
		Location:     decodeLocation(r.Location),
		Status:       models.RecyclableStatus(r.Status),
		IsNegotiable: r.IsNegotiable,
		ContactPhone: deref(r.ContactPhone),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		UserProfile:  snapshot(r.ProfileFullName, r.ProfileEmail, r.ProfileAvatarURL, r.ProfilePhone),
	}
	if r.TotalPrice.Valid {
		total := r.TotalPrice.Decimal
		out.TotalPrice = &total
	}
	return out
}

type orderRow struct {
	ID              uuid.UUID       `db:"id"`
	RecyclableID    uuid.UUID       `db:"recyclable_id"`
	BuyerID         uuid.UUID       `db:"buyer_id"`
	SellerID        uuid.UUID       `db:"seller_id"`
	QuantityOrdered int             `db:"quantity_ordered"`
	TotalAmount     decimal.Decimal `db:"total_amount"`
	Status          string          `db:"status"`
	BuyerNotes      *string         `db:"buyer_notes"`
	SellerNotes     *string         `db:"seller_notes"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`

	BuyerFullName   *string `db:"buyer_full_name"`
	BuyerEmail      *string `db:"buyer_email"`
	BuyerAvatarURL  *string `db:"buyer_avatar_url"`
	BuyerPhone      *string `db:"buyer_phone"`
	SellerFullName  *string `db:"seller_full_name"`
	SellerEmail     *string `db:"seller_email"`
	SellerAvatarURL *string `db:"seller_avatar_url"`
	SellerPhone     *string `db:"seller_phone"`
}

func (r orderRow) toModel() models.RecyclableOrder {
	return models.RecyclableOrder{
		ID:              r.ID,
		RecyclableID:    r.RecyclableID,
		BuyerID:         r.BuyerID,
		SellerID:        r.SellerID,
		QuantityOrdered: r.QuantityOrdered,
		TotalAmount:     r.TotalAmount,
		Status:          models.OrderStatus(r.Status),
		BuyerNotes:      deref(r.BuyerNotes),
		SellerNotes:     deref(r.SellerNotes),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		BuyerProfile:    snapshot(r.BuyerFullName, r.BuyerEmail, r.BuyerAvatarURL, r.BuyerPhone),
		SellerProfile:   snapshot(r.SellerFullName, r.SellerEmail, r.SellerAvatarURL, r.SellerPhone),
	}
}

type profileRow struct {
	ID         uuid.UUID `db:"id"`
	TelegramID *int64    `db:"telegram_id"`
	FullName   string    `db:"full_name"`
	Email      *string   `db:"email"`
	AvatarURL  *string   `db:"avatar_url"`
	Phone      *string   `db:"phone"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r profileRow) toModel() models.Profile {
	p := models.Profile{
		ID:        r.ID,
		FullName:  r.FullName,
		Email:     deref(r.Email),
		AvatarURL: r.AvatarURL,
		Phone:     deref(r.Phone),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.TelegramID != nil {
		p.TelegramID = *r.TelegramID
	}
	return p
}

// snapshot возвращает nil, если LEFT JOIN не нашел профиль
func snapshot(fullName, email, avatarURL, phone *string) *models.ProfileSnapshot {
	if fullName == nil && email == nil && avatarURL == nil && phone == nil {
		return nil
	}
	return &models.ProfileSnapshot{
		FullName:  deref(fullName),
		Email:     deref(email),
		AvatarURL: avatarURL,
		Phone:     deref(phone),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullable превращает пустую строку в NULL
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func decodeLocation(raw []byte) *models.Location {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	var loc models.Location
	if err := json.Unmarshal(raw, &loc); err != nil || loc.IsZero() {
		return nil
	}
	return &loc
}

func encodeLocation(loc *models.Location) ([]byte, error) {
	if loc.IsZero() {
		return nil, nil
	}
	return json.Marshal(*loc)
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
