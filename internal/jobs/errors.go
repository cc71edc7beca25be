package jobs

import (
	"errors"
	"fmt"
)

// Ошибки валидации описания задачи.
var (
	// ErrNotMapping — описание не является отображением.
	ErrNotMapping = errors.New("job definition is not a mapping")

	// ErrMissingType — type отсутствует, пуст или не строка.
	ErrMissingType = errors.New("job type is required")

	// ErrInvalidData — data отсутствует или не отображение.
	ErrInvalidData = errors.New("job data must be a mapping")
)

// ValidationError — ошибка валидации с указанием поля.
type ValidationError struct {
	Field  string // поле описания ("" — описание целиком)
	Reason string // описание ошибки
	Err    error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid job definition: %s: %s", e.Field, e.Reason)
	}
	return "invalid job definition: " + e.Reason
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(field, reason string, err error) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}
