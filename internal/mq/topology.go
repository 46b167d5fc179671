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
	ExchangeRuns   Exchange = "recipes.runs"
	ExchangeEvents Exchange = "recipes.events"
	ExchangeDLQ    Exchange = "recipes.dlq"
)

// Queues — имена очередей.
const (
	QueueRunsRequested Queue = "runs.requested"
	QueueDLQRuns       Queue = "dlq.runs"
)

// Routing keys.
const (
	RoutingKeyRequested RoutingKey = "requested"
	RoutingKeyDLQRuns   RoutingKey = "runs"
)

// SetupTopology объявляет exchanges, queues и bindings.
// Операция идемпотентна.
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

// declareExchanges создаёт обменники.
// recipes.events — topic: подписчики выбирают события по шаблону (run.*, step.failed).
func declareExchanges(ch *amqp.Channel) error {
	for _, ex := range exchangeDecls() {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	for _, q := range queueDecls() {
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
	for _, b := range bindingDecls() {
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

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

func exchangeDecls() []exchangeDecl {
	return []exchangeDecl{
		{ExchangeRuns, amqp.ExchangeDirect},
		{ExchangeEvents, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}
}

func queueDecls() []queueDecl {
	return []queueDecl{
		// runs.requested — с DLQ: отклонённые запросы не теряются
		{QueueRunsRequested, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQRuns),
		}},
		// dlq.runs — сама DLQ очередь
		{QueueDLQRuns, nil},
	}
}

func bindingDecls() []bindingDecl {
	return []bindingDecl{
		{QueueRunsRequested, RoutingKeyRequested, ExchangeRuns},
		{QueueDLQRuns, RoutingKeyDLQRuns, ExchangeDLQ},
	}
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Recipes RabbitMQ Topology:

    recipes.runs (direct)
    └── runs.requested [routing: requested]
            Consumer: Worker
            DLQ: dlq.runs

    recipes.events (topic)
    └── routing: run.* / step.*
            Consumers: external subscribers

    recipes.dlq (direct)
    └── dlq.runs [routing: runs]
            Manual processing
  `
}
