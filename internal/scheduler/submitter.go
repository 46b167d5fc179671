package scheduler

import (
	"context"
	"fmt"

	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/mq"
)

// Submitter передаёт запрос на run исполнителю.
type Submitter interface {
	Submit(ctx context.Context, req mq.RunRequestedPayload) error
}

// Processor выполняет запрос на месте (worker.Worker).
type Processor interface {
	ProcessRequest(ctx context.Context, payload mq.RunRequestedPayload) (*domain.Run, error)
}

// LocalSubmitter выполняет run синхронно в процессе планировщика.
type LocalSubmitter struct {
	Processor Processor
}

// Submit выполняет run и ждёт его завершения.
func (s LocalSubmitter) Submit(ctx context.Context, req mq.RunRequestedPayload) error {
	if _, err := s.Processor.ProcessRequest(ctx, req); err != nil {
		return fmt.Errorf("process run %s: %w", req.RunID, err)
	}
	return nil
}

// RunPublisher публикует запросы в очередь (mq.Publisher).
type RunPublisher interface {
	PublishRunRequested(ctx context.Context, payload mq.RunRequestedPayload) error
}

// QueueSubmitter отправляет run в очередь runs.requested.
type QueueSubmitter struct {
	Publisher RunPublisher
}

// Submit публикует запрос.
func (s QueueSubmitter) Submit(ctx context.Context, req mq.RunRequestedPayload) error {
	if err := s.Publisher.PublishRunRequested(ctx, req); err != nil {
		return fmt.Errorf("publish run %s: %w", req.RunID, err)
	}
	return nil
}
