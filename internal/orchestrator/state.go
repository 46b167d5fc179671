package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/engine"
)

// Phase — фаза выполнения run.
//
//	Pending → Running → Completed
//	                  ↘ Aborted
//	                  ↘ Cancelled
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
	PhaseAborted   Phase = "aborted"
	PhaseCancelled Phase = "cancelled"
)

// IsTerminal возвращает true для финальных фаз.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseAborted || p == PhaseCancelled
}

// RunState — состояние выполнения одного run в памяти.
//
// RunState создаётся когда Orchestrator начинает run и удаляется из
// активных, когда run завершается. Отчёт строится по мере выполнения;
// после перехода в финальную фазу он не меняется.
type RunState struct {
	runID  uuid.UUID
	recipe *domain.Recipe

	// report — отчёт, который собирается по шагам.
	report *domain.ExecutionReport

	// phase — текущая фаза.
	phase Phase

	// current — шаг в процессе выполнения.
	current string

	// stepData — результаты шагов для шаблонов (имя → данные).
	stepData map[string]*engine.StepData

	// snapshot — Context на момент старта (для отката).
	snapshot map[string]any

	// cancel — отмена контекста run.
	cancel context.CancelFunc

	// mu — мьютекс для потокобезопасного доступа.
	mu sync.RWMutex
}

// NewRunState создаёт новый RunState в фазе Pending.
func NewRunState(runID uuid.UUID, recipe *domain.Recipe, cancel context.CancelFunc) *RunState {
	if cancel == nil {
		cancel = func() {}
	}
	return &RunState{
		runID:  runID,
		recipe: recipe,
		report: &domain.ExecutionReport{
			RunID:  runID,
			Recipe: recipe.Name,
			Status: domain.RunStatusPending,
			Steps:  make([]domain.StepOutcome, 0, len(recipe.Steps)),
		},
		phase:    PhasePending,
		stepData: make(map[string]*engine.StepData),
		cancel:   cancel,
	}
}

// Start переводит run в Running.
func (s *RunState) Start(now time.Time, snapshot map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.phase, PhaseRunning)
	}
	s.phase = PhaseRunning
	s.snapshot = snapshot
	s.report.Status = domain.RunStatusRunning
	s.report.StartedAt = now
	return nil
}

// MarkStepRunning отмечает шаг как выполняющийся.
func (s *RunState) MarkStepRunning(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = step
}

// RecordOutcome добавляет результат шага в отчёт.
// Результат становится доступен следующим шагам через {{ .Steps.name }}.
func (s *RunState) RecordOutcome(outcome domain.StepOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseRunning {
		return fmt.Errorf("%w: record outcome in phase %s", ErrInvalidTransition, s.phase)
	}
	s.current = ""
	s.report.Steps = append(s.report.Steps, outcome)
	s.stepData[outcome.Step] = &engine.StepData{
		Result: outcome.Result,
		Status: string(outcome.Status),
	}
	return nil
}

// Complete переводит run в Completed.
// Статус SUCCEEDED, если ни один шаг не упал, иначе SUCCEEDED_WITH_FAILURES.
func (s *RunState) Complete(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.finishLocked(PhaseCompleted, now); err != nil {
		return err
	}

	s.report.Status = domain.RunStatusSucceeded
	for _, o := range s.report.Steps {
		if o.Failed() {
			s.report.Status = domain.RunStatusSucceededWithFailures
			break
		}
	}
	return nil
}

// Abort переводит run в Aborted из-за критичного шага.
func (s *RunState) Abort(now time.Time, failedStep string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.finishLocked(PhaseAborted, now); err != nil {
		return err
	}
	s.report.Status = domain.RunStatusAborted
	s.report.FailedStep = failedStep
	return nil
}

// MarkCancelled переводит run в Cancelled.
func (s *RunState) MarkCancelled(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.finishLocked(PhaseCancelled, now); err != nil {
		return err
	}
	s.report.Status = domain.RunStatusCancelled
	return nil
}

func (s *RunState) finishLocked(to Phase, now time.Time) error {
	if s.phase != PhaseRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.phase, to)
	}
	s.phase = to
	s.current = ""
	s.report.FinishedAt = now
	return nil
}

// SetCompensations записывает результаты компенсации (только для Aborted).
func (s *RunState) SetCompensations(outcomes []domain.StepOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Compensations = outcomes
}

// Cancel отменяет контекст run. Отмена проверяется между шагами.
func (s *RunState) Cancel() {
	s.cancel()
}

// Phase возвращает текущую фазу.
func (s *RunState) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Report возвращает копию отчёта.
func (s *RunState) Report() *domain.ExecutionReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report.Clone()
}

// Snapshot возвращает Context на момент старта run.
func (s *RunState) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// TemplateData собирает данные для шаблонов: values и результаты шагов.
func (s *RunState) TemplateData(values map[string]any) *engine.TemplateData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := engine.NewTemplateData(values)
	data.Recipe = s.recipe.Name
	data.RunID = s.runID.String()
	for name, sd := range s.stepData {
		data.Steps[name] = &engine.StepData{Result: sd.Result, Status: sd.Status}
	}
	return data
}

// RunID возвращает ID run.
func (s *RunState) RunID() uuid.UUID {
	return s.runID
}

// Recipe возвращает рецепт run.
func (s *RunState) Recipe() *domain.Recipe {
	return s.recipe
}

// Stats возвращает статистику выполнения.
func (s *RunState) Stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := RunStats{
		Phase:       s.phase,
		TotalSteps:  len(s.recipe.Steps),
		CurrentStep: s.current,
	}
	for _, o := range s.report.Steps {
		switch o.Status {
		case domain.StepStatusSucceeded:
			stats.SucceededSteps++
		case domain.StepStatusFailed:
			stats.FailedSteps++
		case domain.StepStatusSkipped:
			stats.SkippedSteps++
		}
	}
	stats.PendingSteps = stats.TotalSteps - len(s.report.Steps)
	return stats
}

// RunStats — статистика выполнения run.
type RunStats struct {
	Phase          Phase  `json:"phase"`
	TotalSteps     int    `json:"total_steps"`
	SucceededSteps int    `json:"succeeded_steps"`
	FailedSteps    int    `json:"failed_steps"`
	SkippedSteps   int    `json:"skipped_steps"`
	PendingSteps   int    `json:"pending_steps"`
	CurrentStep    string `json:"current_step,omitempty"`
}
