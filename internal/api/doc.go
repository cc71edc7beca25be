// Package api содержит HTTP API регистрации расписаний.
//
// Структура:
//   - handler.go          — Handler с зависимостями (scheduler, очередь задач)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — recovery, logging, rate limit, лимит тела
//   - response.go         — JSON-ответы и отображение ошибок в HTTP
//   - dto.go              — Data Transfer Objects (request/response)
//   - schedule_handler.go — /schedules (now, at, every, list, get, cancel)
//   - job_handler.go      — /jobs и /healthz
//
// Ошибки: описание задачи и выражение — 400, нет записи — 404,
// хранилище маркеров недоступно — 503.
package api
