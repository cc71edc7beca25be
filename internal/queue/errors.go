package queue

import "errors"

// ErrNoRepo — Service создан без репозитория.
var ErrNoRepo = errors.New("queue: job repository not configured")
