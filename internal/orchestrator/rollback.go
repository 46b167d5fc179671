package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/engine"
	"github.com/shaiso/Recipes/internal/state"
	"github.com/shaiso/Recipes/internal/steps"
)

// SnapshotRestoreModule — имя модуля в отчёте для SnapshotCompensator.
const SnapshotRestoreModule = "snapshot_restore"

// CompensationRequest — данные для отката прерванного run.
type CompensationRequest struct {
	// RunID — идентификатор run.
	RunID uuid.UUID

	// Recipe — рецепт run.
	Recipe *domain.Recipe

	// Report — отчёт на момент прерывания.
	Report *domain.ExecutionReport

	// State — Context run.
	State *state.Context

	// Snapshot — Context на момент старта run.
	Snapshot map[string]any

	// Logger — логгер с полями run.
	Logger *slog.Logger
}

// Compensator выполняет откат после прерывания run.
//
// Вызывается только для Aborted. Результаты попадают в
// ExecutionReport.Compensations и не смешиваются с шагами.
type Compensator interface {
	Compensate(ctx context.Context, req *CompensationRequest) []domain.StepOutcome
}

// ModuleCompensator вызывает компенсирующие модули шагов.
//
// Порядок: сначала упавший шаг (если у него есть compensate), затем
// успешно выполненные шаги в обратном порядке. Шаги без compensate
// пропускаются. Ошибка одного компенсирующего модуля не останавливает
// остальные.
type ModuleCompensator struct {
	resolver steps.Resolver
}

// NewModuleCompensator создаёт ModuleCompensator.
func NewModuleCompensator(resolver steps.Resolver) *ModuleCompensator {
	return &ModuleCompensator{resolver: resolver}
}

// Compensate выполняет компенсирующие модули.
func (c *ModuleCompensator) Compensate(ctx context.Context, req *CompensationRequest) []domain.StepOutcome {
	var outcomes []domain.StepOutcome

	for _, step := range compensationOrder(req.Recipe, req.Report) {
		outcomes = append(outcomes, c.compensateStep(ctx, req, step))
	}

	return outcomes
}

func (c *ModuleCompensator) compensateStep(ctx context.Context, req *CompensationRequest, step domain.StepDef) domain.StepOutcome {
	start := time.Now()
	outcome := domain.StepOutcome{
		Step:      step.Name,
		Module:    step.Compensate,
		StartedAt: start,
	}
	fail := func(kind domain.ErrorKind, err error) domain.StepOutcome {
		outcome.Status = domain.StepStatusFailed
		outcome.Error = &domain.ErrorDetail{Kind: kind, Message: err.Error(), Module: step.Compensate}
		outcome.Err = err
		outcome.Duration = time.Since(start)
		return outcome
	}

	impl, err := c.resolver.Resolve(step.Compensate)
	if err != nil {
		return fail(domain.ErrorKindResolution, err)
	}

	data := engine.NewTemplateData(req.State.Snapshot())
	data.Recipe = req.Recipe.Name
	data.RunID = req.RunID.String()
	args, err := engine.RenderArgs(step.CompensateArgs, data)
	if err != nil {
		return fail(domain.ErrorKindTemplate, err)
	}

	stepReq := &steps.Request{
		RunID:    req.RunID,
		Step:     step.Name,
		Module:   step.Compensate,
		Args:     args,
		State:    req.State.WithActor("compensate:" + step.Name),
		Template: data,
		Logger:   req.Logger,
	}

	if _, err := invoke(ctx, impl, stepReq); err != nil {
		kind := classify(err)
		return fail(kind, &steps.StepExecutionError{Step: step.Name, Module: step.Compensate, Err: err})
	}

	outcome.Status = domain.StepStatusSucceeded
	outcome.Duration = time.Since(start)
	return outcome
}

// compensationOrder возвращает шаги для компенсации в порядке вызова.
func compensationOrder(recipe *domain.Recipe, report *domain.ExecutionReport) []domain.StepDef {
	var order []domain.StepDef

	if report.FailedStep != "" {
		if step, ok := recipe.Step(report.FailedStep); ok && step.HasCompensation() {
			order = append(order, step)
		}
	}

	for i := len(report.Steps) - 1; i >= 0; i-- {
		o := report.Steps[i]
		if o.Status != domain.StepStatusSucceeded {
			continue
		}
		if step, ok := recipe.Step(o.Step); ok && step.HasCompensation() {
			order = append(order, step)
		}
	}

	return order
}

// SnapshotCompensator возвращает Context к состоянию на момент старта run.
// Восстановление пишется в журнал от имени state.RollbackActor.
//
// Откатываются только ключи, которые run изменил сам (см. state.Context.WithWriteLog):
// записи других runs в общий Context сохраняются. Если run очищал или
// заменял таблицу целиком, либо у Context нет журнала записей,
// восстанавливается весь снимок.
type SnapshotCompensator struct{}

// NewSnapshotCompensator создаёт SnapshotCompensator.
func NewSnapshotCompensator() *SnapshotCompensator {
	return &SnapshotCompensator{}
}

// Compensate восстанавливает снимок.
func (c *SnapshotCompensator) Compensate(ctx context.Context, req *CompensationRequest) []domain.StepOutcome {
	start := time.Now()
	outcome := domain.StepOutcome{
		Step:      req.Recipe.Name,
		Module:    SnapshotRestoreModule,
		StartedAt: start,
		Status:    domain.StepStatusSucceeded,
	}

	if err := restoreSnapshot(req.State, req.Snapshot); err != nil {
		outcome.Status = domain.StepStatusFailed
		outcome.Error = &domain.ErrorDetail{
			Kind:    domain.ErrorKindSerialization,
			Message: fmt.Sprintf("restore snapshot: %v", err),
			Module:  SnapshotRestoreModule,
		}
		outcome.Err = err
	}

	outcome.Duration = time.Since(start)
	return []domain.StepOutcome{outcome}
}

func restoreSnapshot(st *state.Context, snapshot map[string]any) error {
	keys, all := st.Written()
	target := st.WithActor(state.RollbackActor)
	if all || keys == nil {
		return target.Restore(snapshot)
	}
	return target.RestoreKeys(snapshot, keys)
}

// ChainCompensator вызывает несколько Compensator по порядку.
type ChainCompensator []Compensator

// Compensate объединяет результаты всех Compensator.
func (c ChainCompensator) Compensate(ctx context.Context, req *CompensationRequest) []domain.StepOutcome {
	var outcomes []domain.StepOutcome
	for _, comp := range c {
		outcomes = append(outcomes, comp.Compensate(ctx, req)...)
	}
	return outcomes
}

// Режимы отката, которые выбираются конфигурацией сервиса.
const (
	RollbackNone     = "none"
	RollbackModules  = "modules"
	RollbackSnapshot = "snapshot"
	RollbackFull     = "full"
)

// NewCompensator собирает Compensator для режима mode. RollbackFull
// сначала вызывает компенсирующие модули, затем восстанавливает снимок
// Context. Для RollbackNone возвращает nil: откат не выполняется.
func NewCompensator(mode string, resolver steps.Resolver) (Compensator, error) {
	switch mode {
	case RollbackNone:
		return nil, nil
	case RollbackModules, "":
		return NewModuleCompensator(resolver), nil
	case RollbackSnapshot:
		return NewSnapshotCompensator(), nil
	case RollbackFull:
		return ChainCompensator{NewModuleCompensator(resolver), NewSnapshotCompensator()}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRollback, mode)
	}
}
