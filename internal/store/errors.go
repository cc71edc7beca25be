package store

import (
	"errors"
	"fmt"
)

// ErrNotFound — ключ расписания отсутствует (истёк, отменён или не создавался).
var ErrNotFound = errors.New("schedule key not found")

// StoreError — ошибка обращения к Redis.
//
// Хранилище не повторяет операции: решение о повторе принимает вызывающий код.
type StoreError struct {
	Op  string // операция: arm, disarm, load, claim, finish, inspect, list
	Key string // ключ Redis (может быть пустым)
	Err error  // исходная ошибка
}

// Error реализует интерфейс error.
func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

// Unwrap возвращает исходную ошибку.
func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op, key string, err error) error {
	return &StoreError{Op: op, Key: key, Err: err}
}
