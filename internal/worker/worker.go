package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Recipes/internal/contexts"
	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/mq"
	"github.com/shaiso/Recipes/internal/state"
)

// Default configuration values.
const (
	defaultPrefetch = 1
)

// Runner выполняет рецепт (orchestrator.Orchestrator).
type Runner interface {
	RunSourceWithID(ctx context.Context, runID uuid.UUID, raw []byte, st *state.Context) (*domain.ExecutionReport, error)
}

// RunStore сохраняет и читает runs (repo.RunRepo).
type RunStore interface {
	Save(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
}

// Worker выполняет рецепты из очереди runs.requested.
type Worker struct {
	runner   Runner
	runs     RunStore
	contexts *contexts.Registry

	conn     *mq.Connection
	consumer *mq.Consumer
	prefetch int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Runner — исполнитель рецептов.
	Runner Runner

	// Runs — хранилище runs. nil — результаты только логируются.
	Runs RunStore

	// Contexts — реестр общих контекстов (default: в памяти, без хранилища).
	Contexts *contexts.Registry

	// Conn — соединение с RabbitMQ.
	Conn *mq.Connection

	// Prefetch — сообщений в обработке одновременно (default: 1).
	// Шаги одного run идут строго по порядку, параллельны только runs.
	Prefetch int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Contexts
	if registry == nil {
		registry = contexts.NewRegistry(nil, logger)
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	return &Worker{
		runner:   cfg.Runner,
		runs:     cfg.Runs,
		contexts: registry,
		conn:     cfg.Conn,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Start запускает consumer очереди runs.requested.
func (w *Worker) Start(ctx context.Context) error {
	if w.conn == nil {
		return ErrNoConnection
	}
	if w.IsStopped() {
		return ErrWorkerStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker", "prefetch", w.prefetch)

	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:    mq.QueueRunsRequested,
		Handler:  w.handleRunRequested,
		Prefetch: w.prefetch,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("run consumer error", "error", err)
		}
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения текущего run.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}
