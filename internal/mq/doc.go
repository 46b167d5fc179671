// Package mq связывает сервисы через RabbitMQ (amqp091-go).
//
// Connection держит соединение и переподключается при обрыве.
// SetupTopology объявляет exchanges и очереди:
//
//	recipes.runs    direct, ключ requested, очередь runs.requested
//	recipes.events  topic, события run.* и step.* от оркестратора
//	recipes.dlq     очередь dlq.runs для запросов, упавших повторно
//
// Publisher отправляет RunRequestedPayload и реализует Observer движка,
// публикуя события выполнения. Consumer читает очередь с ручным ack.
package mq
