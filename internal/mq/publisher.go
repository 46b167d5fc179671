package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Recipes/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunRequested MessageType = "run.requested"
	MessageTypeEvent        MessageType = "event"
)

// publishTimeout ограничивает публикацию событий из Observe.
const publishTimeout = 5 * time.Second

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
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

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// RunRequestedPayload — запрос на выполнение рецепта.
type RunRequestedPayload struct {
	// RunID — ID будущего run. Повторная доставка использует тот же ID.
	RunID uuid.UUID `json:"run_id"`

	// Recipe — текст рецепта (YAML или JSON).
	Recipe string `json:"recipe"`

	// Context — начальные значения для свежего контекста.
	Context map[string]any `json:"context,omitempty"`

	// ContextName — имя общего контекста. Если задано, Context игнорируется.
	ContextName string `json:"context_name,omitempty"`

	// Source — кто запросил run (api, scheduler:<name>, cli).
	Source string `json:"source,omitempty"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
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
				Type:         string(msg.Type),
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

// PublishRunRequested публикует запрос на выполнение рецепта.
// Потребитель: Worker.
func (p *Publisher) PublishRunRequested(ctx context.Context, payload RunRequestedPayload) error {
	if payload.RunID == uuid.Nil {
		payload.RunID = uuid.New()
	}
	return p.Publish(ctx, ExchangeRuns, RoutingKeyRequested, NewMessage(MessageTypeRunRequested, payload))
}

// PublishEvent публикует событие движка в recipes.events.
// Routing key совпадает с типом события (run.completed, step.failed, ...).
func (p *Publisher) PublishEvent(ctx context.Context, ev domain.Event) error {
	return p.Publish(ctx, ExchangeEvents, EventRoutingKey(ev), NewMessage(MessageTypeEvent, ev))
}

// Observe публикует событие движка. Ошибка публикации только логируется:
// недоступность брокера не должна влиять на выполнение рецепта.
func (p *Publisher) Observe(ctx context.Context, ev domain.Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.PublishEvent(pubCtx, ev); err != nil {
		p.logger.Warn("failed to publish event",
			"event", ev.Type,
			"run_id", ev.RunID,
			"error", err,
		)
	}
}

// EventRoutingKey возвращает routing key для события.
func EventRoutingKey(ev domain.Event) RoutingKey {
	return RoutingKey(ev.Type)
}
