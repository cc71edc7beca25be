package listener

import (
	"errors"
	"fmt"
)

// ErrDisconnected — подписка на события прервалась.
var ErrDisconnected = errors.New("expiry subscription lost")

// DecodeError — payload маркера не удалось разобрать.
// Событие логируется и отбрасывается.
type DecodeError struct {
	ScheduleID string
	Err        error
}

// Error реализует интерфейс error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode marker %s: %v", e.ScheduleID, e.Err)
}

// Unwrap возвращает исходную ошибку.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
