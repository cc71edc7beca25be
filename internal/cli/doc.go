// Package cli реализует инструмент командной строки Kronos.
//
// # Обзор
//
// CLI — клиентская утилита для Kronos API. Регистрирует расписания,
// показывает взведённые маркеры и задачи очереди. Всё, кроме
// job watch, идёт через HTTP.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Kronos API. Инкапсулирует запросы, разбор
// конвертов (data, data+total, error) и превращает ответ с ошибкой
// в *APIError.
//
//	client := cli.NewClient("http://localhost:8080")
//	ack, err := client.ScheduleEvery(ctx, "5 minutes", def)
//
// ## Output
//
// Форматирование вывода: таблицы (text/tabwriter) по умолчанию,
// JSON с флагом --json. Данные идут в stdout, сообщения в stderr:
//
//	kronos schedule list --json | jq .
//
// ## Commands
//
//   - now, at WHEN, every INTERVAL: регистрация задачи
//   - schedule: list, create, show, cancel
//   - job: list, show, watch
//
// Описание задачи собирается из --type, --data KEY=VALUE,
// --attr KEY=VALUE или целиком из --definition (JSON или @file).
//
// job watch подключается к RabbitMQ напрямую: временная очередь
// привязывается к kronos.jobs и печатает объявления job.queued.
//
// Каждая группа создаётся фабричной функцией (NewScheduleCmd и т.д.),
// принимающей clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
