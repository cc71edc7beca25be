package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Kronos/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// MessageTypeJobQueued — задача готова к выполнению.
const MessageTypeJobQueued MessageType = "job.queued"

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// JobQueuedPayload — payload объявления о поставленной задаче.
type JobQueuedPayload struct {
	JobID      uuid.UUID `json:"job_id"`
	Type       string    `json:"type"`
	Priority   int       `json:"priority"`
	Tag        string    `json:"tag"`
	ScheduleID string    `json:"schedule_id,omitempty"`
}

// NewJobQueuedPayload собирает payload объявления из задачи.
func NewJobQueuedPayload(job *domain.Job) JobQueuedPayload {
	return JobQueuedPayload{
		JobID:      job.ID,
		Type:       job.Type,
		Priority:   job.Priority,
		Tag:        job.Tag(),
		ScheduleID: job.ScheduleID,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message, priority uint8) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Priority:     priority,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishJobQueued объявляет задачу, готовую к выполнению.
// Потребитель: исполнители задач.
func (p *Publisher) PublishJobQueued(ctx context.Context, job *domain.Job) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeJobQueued,
		Payload:   NewJobQueuedPayload(job),
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, ExchangeJobs, RoutingKeyQueued, msg, AMQPPriority(job.Priority))
}

// AMQPPriority переводит приоритет задачи (меньше — важнее)
// в приоритет AMQP (больше — важнее, до MaxPriority).
func AMQPPriority(p int) uint8 {
	switch {
	case p <= -15:
		return MaxPriority
	case p <= -10:
		return 7
	case p < 0:
		return 5
	case p == 0:
		return 4
	default:
		return 1
	}
}
