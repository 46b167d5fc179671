package worker

import "errors"

// Ошибки воркера.
var (
	// ErrInvalidRequest — сообщение run.requested не удалось разобрать.
	ErrInvalidRequest = errors.New("invalid run request")

	// ErrEmptyRecipe — в запросе нет текста рецепта.
	ErrEmptyRecipe = errors.New("run request has no recipe")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")

	// ErrNoConnection — Start вызван без соединения с RabbitMQ.
	ErrNoConnection = errors.New("worker has no RabbitMQ connection")
)
