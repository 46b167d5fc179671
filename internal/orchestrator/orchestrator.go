package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/engine"
	"github.com/shaiso/Recipes/internal/state"
	"github.com/shaiso/Recipes/internal/steps"
	"github.com/shaiso/Recipes/internal/telemetry"
)

// Orchestrator выполняет рецепты.
//
// Orchestrator — центральный компонент системы, который:
//   - Проверяет рецепт перед запуском
//   - Выполняет шаги строго по порядку
//   - Записывает результат каждого шага в отчёт
//   - Прерывает run при падении критичного шага
//   - Отправляет события наблюдателям
//
// Один Orchestrator можно использовать из нескольких горутин.
// Блокировки не удерживаются во время выполнения шага.
type Orchestrator struct {
	resolver    steps.Resolver
	observer    *MultiObserver
	compensator Compensator

	// Active runs — runs в процессе выполнения (runID → state)
	activeRuns map[uuid.UUID]*RunState
	mu         sync.RWMutex

	// Lifecycle
	logger    *slog.Logger
	stopped   bool
	stoppedMu sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Resolver — реестр модулей (default: steps.DefaultRegistry()).
	Resolver steps.Resolver

	// Observers получают события выполнения.
	Observers []Observer

	// Compensator вызывается после Aborted. nil — без отката.
	Compensator Compensator

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = steps.DefaultRegistry()
	}

	return &Orchestrator{
		resolver:    resolver,
		observer:    NewMultiObserver(logger, cfg.Observers...),
		compensator: cfg.Compensator,
		activeRuns:  make(map[uuid.UUID]*RunState),
		logger:      logger,
	}
}

// Run выполняет рецепт над Context с новым run ID.
//
// Ошибка возвращается только если run не был начат (nil аргументы,
// невалидный рецепт, оркестратор остановлен). Иначе всегда возвращается
// отчёт, даже если шаги упали или run отменён.
func (o *Orchestrator) Run(ctx context.Context, recipe *domain.Recipe, st *state.Context) (*domain.ExecutionReport, error) {
	return o.RunWithID(ctx, uuid.New(), recipe, st)
}

// RunSource загружает рецепт из YAML/JSON и выполняет его.
// Ошибки формата и валидации возвращаются без отчёта.
func (o *Orchestrator) RunSource(ctx context.Context, raw []byte, st *state.Context) (*domain.ExecutionReport, error) {
	return o.RunSourceWithID(ctx, uuid.New(), raw, st)
}

// RunSourceWithID — RunSource с заданным run ID.
func (o *Orchestrator) RunSourceWithID(ctx context.Context, runID uuid.UUID, raw []byte, st *state.Context) (*domain.ExecutionReport, error) {
	recipe, err := engine.LoadRecipe(raw)
	if err != nil {
		return nil, err
	}
	return o.RunWithID(ctx, runID, recipe, st)
}

// RunWithID выполняет рецепт с заданным run ID.
func (o *Orchestrator) RunWithID(ctx context.Context, runID uuid.UUID, recipe *domain.Recipe, st *state.Context) (*domain.ExecutionReport, error) {
	if recipe == nil {
		return nil, ErrNilRecipe
	}
	if st == nil {
		return nil, ErrNilContext
	}
	if err := engine.ValidateRecipe(recipe); err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rs := NewRunState(runID, recipe, cancel)
	if err := o.addActiveRun(rs); err != nil {
		if errors.Is(err, ErrOrchestratorStopped) {
			return nil, err
		}
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	defer o.removeActiveRun(runID)

	logger := telemetry.WithRecipe(telemetry.WithRunID(o.logger, runID.String()), recipe.Name)
	runCtx = telemetry.WithLogger(runCtx, logger)

	// Журнал записей отделяет изменения этого run от других runs,
	// работающих с тем же Context.
	return o.execute(runCtx, rs, st.WithWriteLog(), logger), nil
}

// Cancel отменяет активный run. Текущий шаг не прерывается силой:
// отмена проверяется перед следующим шагом и видна шагу через ctx.
// Возвращает false, если run не найден среди активных.
func (o *Orchestrator) Cancel(runID uuid.UUID) bool {
	rs := o.getActiveRun(runID)
	if rs == nil {
		return false
	}
	rs.Cancel()
	o.logger.Info("run cancellation requested", "run_id", runID)
	return true
}

// Stop останавливает Orchestrator: новые runs не принимаются,
// активные отменяются.
func (o *Orchestrator) Stop() {
	o.logger.Info("stopping orchestrator...")

	// Флаг ставится под o.mu: addActiveRun проверяет его под тем же
	// замком, и run не может зарегистрироваться после отмены активных.
	o.mu.Lock()
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()
	active := len(o.activeRuns)
	for _, rs := range o.activeRuns {
		rs.Cancel()
	}
	o.mu.Unlock()

	o.logger.Info("orchestrator stopped", "active_runs", active)
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// Modules возвращает список зарегистрированных модулей, если Resolver
// умеет их перечислять.
func (o *Orchestrator) Modules() []string {
	if lister, ok := o.resolver.(interface{ Modules() []string }); ok {
		return lister.Modules()
	}
	return nil
}

// isRunActive проверяет, находится ли run в обработке.
func (o *Orchestrator) isRunActive(runID uuid.UUID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, exists := o.activeRuns[runID]
	return exists
}

// getActiveRun возвращает активный RunState.
func (o *Orchestrator) getActiveRun(runID uuid.UUID) *RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.activeRuns[runID]
}

// addActiveRun добавляет run в активные.
func (o *Orchestrator) addActiveRun(state *RunState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.IsStopped() {
		return ErrOrchestratorStopped
	}
	if _, exists := o.activeRuns[state.RunID()]; exists {
		return ErrRunAlreadyActive
	}

	o.activeRuns[state.RunID()] = state
	return nil
}

// removeActiveRun удаляет run из активных.
func (o *Orchestrator) removeActiveRun(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, runID)
}

// ActiveRunsCount возвращает количество активных runs.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}

// ActiveRunIDs возвращает ID активных runs.
func (o *Orchestrator) ActiveRunIDs() []uuid.UUID {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(o.activeRuns))
	for id := range o.activeRuns {
		ids = append(ids, id)
	}
	return ids
}

// IsRunActive проверяет, выполняется ли run.
func (o *Orchestrator) IsRunActive(runID uuid.UUID) bool {
	return o.isRunActive(runID)
}

// GetActiveRunStats возвращает статистику по активному run.
func (o *Orchestrator) GetActiveRunStats(runID uuid.UUID) (RunStats, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	state, exists := o.activeRuns[runID]
	if !exists {
		return RunStats{}, false
	}

	return state.Stats(), true
}
