package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound запись не найдена (для операций записи; чтение возвращает nil)
	ErrNotFound = errors.New("запись не найдена")

	// ErrUnauthenticated нет личности пользователя, нужна авторизация
	ErrUnauthenticated = errors.New("требуется авторизация")

	// ErrForbidden пользователь не владеет записью
	ErrForbidden = errors.New("нет доступа")

	// ErrInsufficientQuantity в объявлении недостаточно единиц для заказа
	ErrInsufficientQuantity = errors.New("недостаточное количество в объявлении")

	// ErrListingUnavailable объявление не в статусе available
	ErrListingUnavailable = errors.New("объявление недоступно для заказа")

	// ErrStatusChanged статус успели изменить между чтением и записью
	ErrStatusChanged = errors.New("статус уже изменен другим запросом")
)

// ValidationError ошибка проверки данных до обращения к хранилищу
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError создает ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StoreError любая ошибка хранилища кроме "не найдено"
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapStoreError оборачивает ошибку хранилища; nil и доменные ошибки не трогает
func WrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInsufficientQuantity) || errors.Is(err, ErrListingUnavailable) ||
		errors.Is(err, ErrStatusChanged) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// TransitionError недопустимый переход статуса
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("недопустимый переход статуса %s: %s → %s", e.Entity, e.From, e.To)
}
