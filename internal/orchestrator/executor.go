package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/engine"
	"github.com/shaiso/Recipes/internal/state"
	"github.com/shaiso/Recipes/internal/steps"
)

// execute проходит по шагам рецепта и возвращает итоговый отчёт.
func (o *Orchestrator) execute(ctx context.Context, rs *RunState, st *state.Context, logger *slog.Logger) *domain.ExecutionReport {
	recipe := rs.Recipe()

	// Pending → Running. RunState только что создан, ошибки быть не может.
	_ = rs.Start(time.Now(), st.Snapshot())

	logger.Info("run started", "steps", len(recipe.Steps))
	o.emit(ctx, rs, domain.Event{Type: domain.EventRunStarted, Status: string(domain.RunStatusRunning)})

	for _, step := range recipe.Steps {
		if ctx.Err() != nil {
			return o.finishCancelled(ctx, rs, logger)
		}

		outcome := o.executeStep(ctx, rs, st, step, logger)
		if err := rs.RecordOutcome(outcome); err != nil {
			logger.Error("failed to record step outcome", "step", step.Name, "error", err)
		}
		o.emit(ctx, rs, stepEvent(outcome))

		if !outcome.Failed() {
			continue
		}

		// Собственное падение критичного шага прерывает run с откатом,
		// даже если отмена пришла во время того же шага.
		if ctx.Err() != nil && (!step.IsCritical() || cancelledStep(outcome.Err)) {
			return o.finishCancelled(ctx, rs, logger)
		}

		if step.IsCritical() {
			return o.finishAborted(ctx, rs, st, step, logger)
		}

		logger.Warn("non-critical step failed, continuing",
			"step", step.Name,
			"module", step.Module,
			"error", outcome.Error.Message,
		)
	}

	_ = rs.Complete(time.Now())
	report := rs.Report()

	logger.Info("run completed",
		"status", report.Status,
		"duration", report.Duration(),
	)
	o.emit(ctx, rs, domain.Event{
		Type:     domain.EventRunCompleted,
		Status:   string(report.Status),
		Duration: report.Duration(),
	})

	return report
}

// finishAborted прерывает run и запускает откат.
func (o *Orchestrator) finishAborted(ctx context.Context, rs *RunState, st *state.Context, step domain.StepDef, logger *slog.Logger) *domain.ExecutionReport {
	_ = rs.Abort(time.Now(), step.Name)

	logger.Warn("run aborted by critical step",
		"step", step.Name,
		"module", step.Module,
	)

	if o.compensator != nil {
		// Откат выполняется даже если ctx уже отменён сразу после падения.
		compCtx := context.WithoutCancel(ctx)
		outcomes := o.compensator.Compensate(compCtx, &CompensationRequest{
			RunID:    rs.RunID(),
			Recipe:   rs.Recipe(),
			Report:   rs.Report(),
			State:    st,
			Snapshot: rs.Snapshot(),
			Logger:   logger,
		})
		rs.SetCompensations(outcomes)

		for _, c := range outcomes {
			ev := stepEvent(c)
			ev.Type = domain.EventStepCompensated
			o.emit(ctx, rs, ev)
		}
	}

	report := rs.Report()
	o.emit(ctx, rs, domain.Event{
		Type:     domain.EventRunAborted,
		Step:     step.Name,
		Module:   step.Module,
		Status:   string(report.Status),
		Duration: report.Duration(),
	})
	return report
}

// finishCancelled завершает run после отмены контекста.
func (o *Orchestrator) finishCancelled(ctx context.Context, rs *RunState, logger *slog.Logger) *domain.ExecutionReport {
	_ = rs.MarkCancelled(time.Now())
	report := rs.Report()

	logger.Info("run cancelled",
		"completed_steps", len(report.Steps),
		"reason", context.Cause(ctx),
	)
	o.emit(ctx, rs, domain.Event{
		Type:     domain.EventRunCancelled,
		Status:   string(report.Status),
		Duration: report.Duration(),
	})
	return report
}

// executeStep выполняет один шаг и всегда возвращает его результат.
// Ошибки шага не выходят за пределы outcome.
func (o *Orchestrator) executeStep(ctx context.Context, rs *RunState, st *state.Context, step domain.StepDef, logger *slog.Logger) domain.StepOutcome {
	start := time.Now()
	outcome := domain.StepOutcome{
		Step:      step.Name,
		Module:    step.Module,
		StartedAt: start,
	}
	fail := func(kind domain.ErrorKind, err error) domain.StepOutcome {
		outcome.Status = domain.StepStatusFailed
		outcome.Error = &domain.ErrorDetail{Kind: kind, Message: err.Error(), Module: step.Module}
		outcome.Err = err
		outcome.Duration = time.Since(start)
		return outcome
	}

	rs.MarkStepRunning(step.Name)
	o.emit(ctx, rs, domain.Event{Type: domain.EventStepStarted, Step: step.Name, Module: step.Module})

	stepLogger := logger.With("step", step.Name, "module", step.Module)
	data := rs.TemplateData(st.Snapshot())

	if step.When != "" {
		ok, err := engine.RenderCondition(step.When, data)
		if err != nil {
			return fail(domain.ErrorKindTemplate, fmt.Errorf("step %s when: %w", step.Name, err))
		}
		if !ok {
			stepLogger.Debug("step skipped by condition", "when", step.When)
			outcome.Status = domain.StepStatusSkipped
			outcome.Duration = time.Since(start)
			return outcome
		}
	}

	impl, err := o.resolver.Resolve(step.Module)
	if err != nil {
		return fail(domain.ErrorKindResolution, err)
	}

	args, err := renderStepArgs(impl, step.Args, data)
	if err != nil {
		return fail(domain.ErrorKindTemplate, fmt.Errorf("step %s args: %w", step.Name, err))
	}

	req := &steps.Request{
		RunID:    rs.RunID(),
		Step:     step.Name,
		Module:   step.Module,
		Args:     args,
		State:    st.WithActor("step:" + step.Name),
		Template: data,
		Logger:   stepLogger,
	}

	stepLogger.Debug("executing step")

	resp, err := invoke(ctx, impl, req)
	if err != nil {
		return fail(classify(err), &steps.StepExecutionError{Step: step.Name, Module: step.Module, Err: err})
	}

	if resp != nil && resp.Result != nil {
		result, err := state.Copy(resp.Result)
		if err != nil {
			return fail(domain.ErrorKindSerialization, fmt.Errorf("step %s result: %w", step.Name, err))
		}
		outcome.Result = result
	}

	outcome.Status = domain.StepStatusSucceeded
	outcome.Duration = time.Since(start)
	stepLogger.Debug("step succeeded", "duration", outcome.Duration)
	return outcome
}

// invoke вызывает модуль и превращает панику в ошибку.
func invoke(ctx context.Context, impl steps.Step, req *steps.Request) (resp *steps.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("%w: %v", steps.ErrStepPanic, r)
		}
	}()
	return impl.Execute(ctx, req)
}

// classify определяет вид ошибки модуля для отчёта.
// cancelledStep сообщает, что шаг упал из-за отмены, а не по своей причине.
func cancelledStep(err error) bool {
	return errors.Is(err, steps.ErrStepCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func classify(err error) domain.ErrorKind {
	switch {
	case errors.Is(err, steps.ErrStepPanic):
		return domain.ErrorKindPanic
	case state.IsSerializationError(err):
		return domain.ErrorKindSerialization
	case steps.IsResolutionError(err):
		return domain.ErrorKindResolution
	default:
		return domain.ErrorKindExecution
	}
}

// renderStepArgs рендерит аргументы шага.
// Ключи, которые модуль рендерит сам (steps.RawArgsStep), только копируются.
func renderStepArgs(impl steps.Step, args map[string]any, data *engine.TemplateData) (map[string]any, error) {
	raw := make(map[string]bool)
	if r, ok := impl.(steps.RawArgsStep); ok {
		for _, k := range r.RawArgs() {
			raw[k] = true
		}
	}

	result := make(map[string]any, len(args))
	for k, v := range args {
		if !raw[k] && engine.NeedsRender(v) {
			rendered, err := engine.RenderValue(v, data)
			if err != nil {
				return nil, fmt.Errorf("arg %q: %w", k, err)
			}
			result[k] = rendered
			continue
		}

		copied, err := state.Copy(v)
		if err != nil {
			return nil, fmt.Errorf("arg %q: %w", k, err)
		}
		result[k] = copied
	}
	return result, nil
}

// stepEvent строит событие по результату шага.
func stepEvent(o domain.StepOutcome) domain.Event {
	ev := domain.Event{
		Step:     o.Step,
		Module:   o.Module,
		Status:   string(o.Status),
		Error:    o.Error,
		Duration: o.Duration,
	}
	switch o.Status {
	case domain.StepStatusSucceeded:
		ev.Type = domain.EventStepSucceeded
	case domain.StepStatusSkipped:
		ev.Type = domain.EventStepSkipped
	default:
		ev.Type = domain.EventStepFailed
	}
	return ev
}

// emit заполняет общие поля события и отправляет его наблюдателям.
func (o *Orchestrator) emit(ctx context.Context, rs *RunState, ev domain.Event) {
	ev.RunID = rs.RunID()
	ev.Recipe = rs.Recipe().Name
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	o.observer.Observe(ctx, ev)
}
