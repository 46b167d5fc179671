package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/engine"
	"github.com/shaiso/Recipes/internal/mq"
	"github.com/shaiso/Recipes/internal/orchestrator"
	"github.com/shaiso/Recipes/internal/repo"
	"github.com/shaiso/Recipes/internal/state"
	"github.com/shaiso/Recipes/internal/telemetry"
)

// handleRunRequested обрабатывает сообщение из очереди runs.requested.
func (w *Worker) handleRunRequested(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.RunRequestedPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse run.requested payload", "error", err)
		return mq.Permanent(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}

	_, err = w.ProcessRequest(ctx, payload)
	return err
}

// ProcessRequest выполняет один запрос на run.
// Возвращает сохранённый Run (nil для пропущенного дубликата).
func (w *Worker) ProcessRequest(ctx context.Context, payload mq.RunRequestedPayload) (*domain.Run, error) {
	if w.IsStopped() {
		return nil, ErrWorkerStopped
	}
	if payload.Recipe == "" {
		return nil, mq.Permanent(ErrEmptyRecipe)
	}

	logger := telemetry.WithRunID(w.logger, payload.RunID.String())

	// 1. Повторная доставка уже выполненного run
	if done, err := w.alreadyProcessed(ctx, payload); err != nil {
		return nil, err
	} else if done {
		logger.Info("run already processed, skipping")
		return nil, nil
	}

	// 2. Контекст
	st, err := w.resolveContext(ctx, payload)
	if err != nil {
		if state.IsSerializationError(err) {
			run := domain.NewRejectedRun(payload.RunID, engine.RecipeName([]byte(payload.Recipe)), payload.ContextName, err)
			return run, w.save(ctx, run)
		}
		return nil, fmt.Errorf("resolve context: %w", err)
	}

	// 3. Выполнение
	logger.Info("run requested", "source", payload.Source, "context", payload.ContextName)
	report, err := w.runner.RunSourceWithID(ctx, payload.RunID, []byte(payload.Recipe), st)
	switch {
	case err == nil:
	case engine.IsFormatError(err), engine.IsValidationError(err):
		logger.Warn("run rejected", "error", err)
		run := domain.NewRejectedRun(payload.RunID, engine.RecipeName([]byte(payload.Recipe)), payload.ContextName, err)
		return run, w.save(ctx, run)
	case errors.Is(err, orchestrator.ErrRunAlreadyActive):
		logger.Info("run already in progress, skipping")
		return nil, nil
	default:
		return nil, fmt.Errorf("run %s: %w", payload.RunID, err)
	}

	logger.Info("run finished",
		"recipe", report.Recipe,
		"status", report.Status,
		"steps", len(report.Steps),
		"duration", report.Duration(),
	)

	// 4. Сохранение. Run не перезапускается при ошибке сохранения:
	// шаги уже изменили Context, повтор дал бы двойной эффект.
	run := domain.NewRunFromReport(report, payload.ContextName)
	if err := w.save(ctx, run); err != nil {
		logger.Error("failed to save run", "error", err)
	}
	if payload.ContextName != "" {
		if err := w.contexts.Persist(ctx, payload.ContextName); err != nil {
			logger.Error("failed to persist shared context", "context", payload.ContextName, "error", err)
		}
	}

	return run, nil
}

// alreadyProcessed проверяет, сохранён ли run с этим ID.
func (w *Worker) alreadyProcessed(ctx context.Context, payload mq.RunRequestedPayload) (bool, error) {
	if w.runs == nil {
		return false, nil
	}
	_, err := w.runs.GetByID(ctx, payload.RunID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repo.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("check run %s: %w", payload.RunID, err)
	}
}

// resolveContext возвращает общий контекст или создаёт свежий.
func (w *Worker) resolveContext(ctx context.Context, payload mq.RunRequestedPayload) (*state.Context, error) {
	if payload.ContextName != "" {
		return w.contexts.Acquire(ctx, payload.ContextName)
	}
	return state.NewWithValues(payload.Context)
}

// save сохраняет run, если хранилище настроено.
func (w *Worker) save(ctx context.Context, run *domain.Run) error {
	if w.runs == nil {
		return nil
	}
	return w.runs.Save(ctx, run)
}
