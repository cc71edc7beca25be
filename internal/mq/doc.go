// Package mq объявляет задачи очереди через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с переподключением
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — публикация объявлений job.queued
//   - consumer.go   — потребление (наблюдение за объявлениями из CLI)
//
// Строка в БД — источник правды о задаче. Объявление лишь будит
// исполнителей; потерянное сообщение не теряет задачу.
//
// Exchanges:
//   - kronos.jobs — объявления о задачах (job.queued)
//   - kronos.dlq  — dead letter queue
package mq
