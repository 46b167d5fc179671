package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Recipes/internal/contexts"
	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/mq"
	"github.com/shaiso/Recipes/internal/repo"
	"github.com/shaiso/Recipes/internal/state"
)

// Engine выполняет рецепты (orchestrator.Orchestrator).
type Engine interface {
	RunSourceWithID(ctx context.Context, runID uuid.UUID, raw []byte, st *state.Context) (*domain.ExecutionReport, error)
	Cancel(runID uuid.UUID) bool
	Modules() []string
}

// RunStore — хранилище runs (repo.RunRepo).
type RunStore interface {
	Save(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
}

// RunPublisher публикует запросы на run в очередь (mq.Publisher).
type RunPublisher interface {
	PublishRunRequested(ctx context.Context, payload mq.RunRequestedPayload) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	engine    Engine
	runs      RunStore
	contexts  *contexts.Registry
	publisher RunPublisher
	metrics   *HTTPMetrics
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Engine Engine

	// Runs — хранилище runs. nil — runs не сохраняются, GET /runs пуст.
	Runs RunStore

	// Contexts — реестр общих контекстов.
	Contexts *contexts.Registry

	// Publisher — для асинхронных runs. nil — async недоступен.
	Publisher RunPublisher

	// Metrics — метрики HTTP запросов. nil — не собираются.
	Metrics *HTTPMetrics

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Contexts
	if registry == nil {
		registry = contexts.NewRegistry(nil, logger)
	}
	return &Handler{
		engine:    cfg.Engine,
		runs:      cfg.Runs,
		contexts:  registry,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}
