package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrInvalidFilter — недопустимые параметры выборки.
	ErrInvalidFilter = errors.New("invalid filter")
)
