// Package scheduler регистрирует расписания и ставит задачи в очередь
// при срабатывании TTL-маркеров.
//
// Структура:
//   - scheduler.go  — Scheduler: Now, At, AtTime, Every, Schedule, Cancel, Get, List
//   - dispatch.go   — обработка срабатывания (HandleFire)
//   - recurrence.go — следующее срабатывание повторяющегося расписания
//
// Временем ожидания управляет Redis: маркер живёт ровно до момента
// срабатывания, а событие истечения приходит через listener.Listener.
// Scheduler не держит таймеров в памяти.
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Store:   keyStore,
//	    Queue:   queueService,
//	    Source:  listener.NewRedisSource(client, db), // опционально
//	    Logger:  logger,
//	    Metrics: metrics,
//	})
//	if err := sched.Start(ctx); err != nil { ... }
//	defer sched.Stop()
//
//	ack, err := sched.Every(ctx, "every day at 9am", domain.JobDefinition{
//	    "type": "report",
//	    "data": map[string]any{"to": "ops@example.com"},
//	})
//
// Несколько процессов:
//
// Scheduler не выбирает лидера. Каждое событие истечения может прийти
// в несколько процессов: срабатывание отмечается SET NX (Claim), а
// очередь отклоняет повтор по ключу идемпотентности.
package scheduler
