package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeJobs Exchange = "kronos.jobs"
	ExchangeDLQ  Exchange = "kronos.dlq"
)

// Queues — имена очередей.
const (
	QueueJobsQueued Queue = "jobs.queued"
	QueueDLQJobs    Queue = "dlq.jobs"
)

// MaxPriority — верхняя граница приоритета сообщений в jobs.queued.
const MaxPriority = 9

// Routing keys.
const (
	RoutingKeyQueued  RoutingKey = "job.queued"
	RoutingKeyDLQJobs RoutingKey = "jobs"
)

// SetupTopology объявляет обменники, очереди и привязки.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// DeclareTap создаёт временную очередь (exclusive, auto-delete),
// привязанную к job.queued. Возвращает её имя.
//
// Используется для наблюдения за объявлениями без влияния на jobs.queued.
func DeclareTap(ctx context.Context, conn *Connection) (string, error) {
	var name string
	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}

		q, err := ch.QueueDeclare(
			"",    // имя выдаст сервер
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare tap queue: %w", err)
		}

		if err := ch.QueueBind(q.Name, string(RoutingKeyQueued), string(ExchangeJobs), false, nil); err != nil {
			return fmt.Errorf("bind tap queue: %w", err)
		}
		name = q.Name
		return nil
	})
	return name, err
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	for _, ex := range []Exchange{ExchangeJobs, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(ex), // name
			"direct",   // type
			true,       // durable
			false,      // auto-deleted
			false,      // internal
			false,      // no-wait
			nil,        // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}
	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// jobs.queued — с DLQ (исполнитель может отклонить объявление)
		{QueueJobsQueued, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQJobs),
			"x-max-priority":            int32(MaxPriority),
		}},
		{QueueDLQJobs, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueJobsQueued, RoutingKeyQueued, ExchangeJobs},
		{QueueDLQJobs, RoutingKeyDLQJobs, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Kronos RabbitMQ topology:

    kronos.jobs (direct)
    └── jobs.queued [routing: job.queued]
            Consumer: job executors
            DLQ: dlq.jobs

    kronos.dlq (direct)
    └── dlq.jobs [routing: jobs]
            Manual processing
`
}
