// Package queue — очередь задач, в которую scheduler передаёт работу.
//
// Задача сохраняется строкой в PostgreSQL (repo.JobRepo); вставка
// идемпотентна по ключу "{schedule_id}_{fire_at_ms}". Новые задачи
// объявляются в RabbitMQ (mq.Publisher). Ошибка публикации не фатальна:
// строка уже в БД, исполнители могут забрать её опросом.
//
// Promoter переводит отложенные задачи (атрибут delay) из DELAYED в
// QUEUED, когда наступает promote_at, и объявляет их.
package queue
