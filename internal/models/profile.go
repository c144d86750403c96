package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile профиль пользователя маркетплейса
type Profile struct {
	ID         uuid.UUID `json:"id"`
	TelegramID int64     `json:"telegram_id,omitempty"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email,omitempty"`
	AvatarURL  *string   `json:"avatar_url,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Snapshot возвращает денормализованный снимок профиля
func (p Profile) Snapshot() *ProfileSnapshot {
	return &ProfileSnapshot{
		FullName:  p.FullName,
		Email:     p.Email,
		AvatarURL: p.AvatarURL,
		Phone:     p.Phone,
	}
}

// TelegramProfileInput данные пользователя из initData Telegram
type TelegramProfileInput struct {
	TelegramID int64
	FirstName  string
	LastName   string
	Username   string
	PhotoURL   string
}

// FullName собирает отображаемое имя; если имени нет, используется username
func (in TelegramProfileInput) FullName() string {
	name := strings.TrimSpace(in.FirstName + " " + in.LastName)
	if name == "" {
		return in.Username
	}
	return name
}

// AvatarURL возвращает ссылку на фото или nil
func (in TelegramProfileInput) AvatarURL() *string {
	if in.PhotoURL == "" {
		return nil
	}
	url := in.PhotoURL
	return &url
}
