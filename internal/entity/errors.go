package entity

import (
	"errors"
	"fmt"
)

var (
	ErrForbidden         = errors.New("forbidden: access denied")
	ErrNoFieldsToUpdate  = errors.New("no fields to update")
	ErrTaskNotFound      = errors.New("task not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidTaskData   = errors.New("invalid task data")
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrPersistence       = errors.New("storage failure")
)

// DeliveryError - не удалось доставить уведомление конкретному получателю.
// Никогда не возвращается вызывающему мутацию, только логируется.
type DeliveryError struct {
	RecipientID int64
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notification to %d not delivered: %v", e.RecipientID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Persistence оборачивает ошибку хранилища, сохраняя причину.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
