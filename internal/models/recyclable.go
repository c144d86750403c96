package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyPrecision количество знаков после запятой для денежных сумм
const MoneyPrecision int32 = 2

// RecyclableCategory категория вторсырья
type RecyclableCategory string

const (
	CategoryPlastic   RecyclableCategory = "plastic"
	CategoryGlass     RecyclableCategory = "glass"
	CategoryMetal     RecyclableCategory = "metal"
	CategoryPaper     RecyclableCategory = "paper"
	CategoryCardboard RecyclableCategory = "cardboard"
	CategoryOther     RecyclableCategory = "other"
)

// Categories все допустимые категории
var Categories = []RecyclableCategory{
	CategoryPlastic, CategoryGlass, CategoryMetal, CategoryPaper, CategoryCardboard, CategoryOther,
}

// Valid проверяет, что категория входит в перечисление
func (c RecyclableCategory) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// HasBottleSize сообщает, имеет ли смысл размер бутылки для категории
func (c RecyclableCategory) HasBottleSize() bool {
	return c == CategoryPlastic || c == CategoryGlass
}

// BottleSize фиксированный размер бутылки
type BottleSize string

// BottleSizes допустимые размеры бутылок
var BottleSizes = []BottleSize{
	"50cl", "60cl", "75cl", "1 liter", "1.5 liter", "2 liter", "3 liter", "5 liter", "Other",
}

// Valid проверяет, что размер входит в перечисление
func (b BottleSize) Valid() bool {
	for _, v := range BottleSizes {
		if b == v {
			return true
		}
	}
	return false
}

// RecyclableStatus статус объявления
type RecyclableStatus string

const (
	StatusAvailable RecyclableStatus = "available"
	StatusSold      RecyclableStatus = "sold"
	StatusReserved  RecyclableStatus = "reserved"
	StatusRemoved   RecyclableStatus = "removed"
)

// RecyclableStatuses все статусы объявления
var RecyclableStatuses = []RecyclableStatus{StatusAvailable, StatusSold, StatusReserved, StatusRemoved}

// Valid проверяет, что статус входит в перечисление
func (s RecyclableStatus) Valid() bool {
	for _, v := range RecyclableStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// GeoPoint координаты на карте
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location хранит либо координаты, либо произвольный текст адреса
type Location struct {
	Point *GeoPoint
	Text  string
}

// IsZero сообщает, что местоположение не задано
func (l *Location) IsZero() bool {
	return l == nil || (l.Point == nil && l.Text == "")
}

// MarshalJSON сериализует местоположение как объект {lat,lng}, строку или null
func (l Location) MarshalJSON() ([]byte, error) {
	if l.Point != nil {
		return json.Marshal(l.Point)
	}
	if l.Text != "" {
		return json.Marshal(l.Text)
	}
	return []byte("null"), nil
}

// UnmarshalJSON разбирает объект {lat,lng}, строку или null
func (l *Location) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*l = Location{}

	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '"':
		return json.Unmarshal(data, &l.Text)
	case data[0] == '{':
		var p GeoPoint
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		l.Point = &p
		return nil
	}

	return errors.New("location: ожидается объект {lat,lng}, строка или null")
}

// ProfileSnapshot денормализованные данные профиля пользователя
type ProfileSnapshot struct {
	FullName  string  `json:"full_name"`
	Email     string  `json:"email,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Phone     string  `json:"phone,omitempty"`
}

// Recyclable представляет объявление о продаже вторсырья
type Recyclable struct {
	ID           uuid.UUID          `json:"id"`
	UserID       uuid.UUID          `json:"user_id"`
	Title        string             `json:"title"`
	Description  string             `json:"description,omitempty"`
	Category     RecyclableCategory `json:"category"`
	BottleSize   BottleSize         `json:"bottle_size,omitempty"`
	Quantity     int                `json:"quantity"`
	PricePerUnit decimal.Decimal    `json:"price_per_unit"`
	TotalPrice   *decimal.Decimal   `json:"total_price,omitempty"`
	ImageURL     string             `json:"image_url,omitempty"`
	Location     *Location          `json:"location,omitempty"`
	Status       RecyclableStatus   `json:"status"`
	IsNegotiable bool               `json:"is_negotiable"`
	ContactPhone string             `json:"contact_phone,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`

	// Дополнительные поля для API
	UserProfile *ProfileSnapshot `json:"user_profiles,omitempty"`
}

// EffectiveTotal возвращает сохраненную итоговую цену или quantity × price_per_unit
func (r Recyclable) EffectiveTotal() decimal.Decimal {
	if r.TotalPrice != nil {
		if r.TotalPrice.IsNegative() {
			return decimal.Zero
		}
		return *r.TotalPrice
	}
	return ComputeTotal(r.Quantity, r.PricePerUnit)
}

// ComputeTotal считает quantity × price с округлением до MoneyPrecision
func ComputeTotal(quantity int, price decimal.Decimal) decimal.Decimal {
	total := price.Mul(decimal.NewFromInt(int64(quantity))).Round(MoneyPrecision)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// CreateRecyclableInput данные для создания объявления
type CreateRecyclableInput struct {
	Title        string             `json:"title" validate:"required"`
	Description  string             `json:"description,omitempty"`
	Category     RecyclableCategory `json:"category" validate:"required,oneof=plastic glass metal paper cardboard other"`
	BottleSize   BottleSize         `json:"bottle_size,omitempty" validate:"omitempty,oneof=50cl 60cl 75cl '1 liter' '1.5 liter' '2 liter' '3 liter' '5 liter' Other"`
	Quantity     int                `json:"quantity"`
	PricePerUnit decimal.Decimal    `json:"price_per_unit"`
	TotalPrice   *decimal.Decimal   `json:"total_price,omitempty"`
	ImageURL     string             `json:"image_url,omitempty" validate:"omitempty,url"`
	Location     *Location          `json:"location,omitempty"`
	IsNegotiable *bool              `json:"is_negotiable,omitempty"`
	ContactPhone string             `json:"contact_phone,omitempty" validate:"omitempty,max=32"`
}

// UpdateRecyclableInput частичное обновление объявления; nil означает "не менять"
type UpdateRecyclableInput struct {
	Title        *string             `json:"title,omitempty"`
	Description  *string             `json:"description,omitempty"`
	Category     *RecyclableCategory `json:"category,omitempty"`
	BottleSize   *BottleSize         `json:"bottle_size,omitempty"`
	Quantity     *int                `json:"quantity,omitempty"`
	PricePerUnit *decimal.Decimal    `json:"price_per_unit,omitempty"`
	TotalPrice   *decimal.Decimal    `json:"total_price,omitempty"`
	ImageURL     *string             `json:"image_url,omitempty"`
	Location     *Location           `json:"location,omitempty"`
	IsNegotiable *bool               `json:"is_negotiable,omitempty"`
	ContactPhone *string             `json:"contact_phone,omitempty"`
}

// IsEmpty сообщает, что в обновлении нет ни одного поля
func (u UpdateRecyclableInput) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Category == nil && u.BottleSize == nil &&
		u.Quantity == nil && u.PricePerUnit == nil && u.TotalPrice == nil && u.ImageURL == nil &&
		u.Location == nil && u.IsNegotiable == nil && u.ContactPhone == nil
}

// Apply применяет частичное обновление к копии объявления
func (u UpdateRecyclableInput) Apply(r Recyclable) Recyclable {
	if u.Title != nil {
		r.Title = *u.Title
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.Category != nil {
		r.Category = *u.Category
	}
	if u.BottleSize != nil {
		r.BottleSize = *u.BottleSize
	}
	if u.Quantity != nil {
		r.Quantity = *u.Quantity
	}
	if u.PricePerUnit != nil {
		r.PricePerUnit = *u.PricePerUnit
	}
	if u.TotalPrice != nil {
		total := *u.TotalPrice
		r.TotalPrice = &total
	}
	if u.ImageURL != nil {
		r.ImageURL = *u.ImageURL
	}
	if u.Location != nil {
		loc := *u.Location
		r.Location = &loc
	}
	if u.IsNegotiable != nil {
		r.IsNegotiable = *u.IsNegotiable
	}
	if u.ContactPhone != nil {
		r.ContactPhone = *u.ContactPhone
	}
	return r
}
