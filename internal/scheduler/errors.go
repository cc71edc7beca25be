package scheduler

import "errors"

// Ошибки Scheduler.
var (
	// ErrAlreadyStarted — Start вызван повторно.
	ErrAlreadyStarted = errors.New("scheduler already started")

	// ErrNoQueue — очередь задач не настроена.
	ErrNoQueue = errors.New("job queue not configured")

	// ErrNoStore — хранилище маркеров не настроено.
	ErrNoStore = errors.New("schedule store not configured")
)
