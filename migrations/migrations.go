// Package migrations содержит SQL-схему очереди задач (goose).
package migrations

import "embed"

// FS — файлы миграций.
//
//go:embed *.sql
var FS embed.FS
