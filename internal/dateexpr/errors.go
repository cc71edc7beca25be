package dateexpr

import (
	"errors"
	"fmt"
)

// ErrParse — базовая ошибка разбора выражения.
var ErrParse = errors.New("invalid date expression")

// ParseError — ошибка разбора с указанием проблемного токена.
type ParseError struct {
	Expr   string // исходное выражение
	Token  string // токен, на котором остановился разбор
	Reason string // описание ошибки
}

// Error реализует интерфейс error.
func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("parse %q: %s: %q", e.Expr, e.Reason, e.Token)
	}
	return fmt.Sprintf("parse %q: %s", e.Expr, e.Reason)
}

// Unwrap позволяет проверять errors.Is(err, ErrParse).
func (e *ParseError) Unwrap() error {
	return ErrParse
}

func newParseError(expr, token, reason string) *ParseError {
	return &ParseError{Expr: expr, Token: token, Reason: reason}
}
