package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Recipes/internal/domain"
)

func testRecipe() *domain.Recipe {
	return &domain.Recipe{
		Name: "r",
		Steps: []domain.StepDef{
			{Name: "a", Module: "init_number"},
			{Name: "b", Module: "double_number"},
		},
	}
}

func TestNewRunState(t *testing.T) {
	id := uuid.New()
	rs := NewRunState(id, testRecipe(), nil)

	if rs.Phase() != PhasePending {
		t.Errorf("expected pending, got %s", rs.Phase())
	}
	if rs.RunID() != id {
		t.Error("RunID should be set")
	}
	report := rs.Report()
	if report.Status != domain.RunStatusPending {
		t.Errorf("expected PENDING, got %s", report.Status)
	}
	if report.Recipe != "r" {
		t.Errorf("expected recipe r, got %s", report.Recipe)
	}

	// nil cancel не должен паниковать
	rs.Cancel()
}

func TestRunState_Transitions(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		finish func(rs *RunState) error
		phase  Phase
		status domain.RunStatus
	}{
		{"complete", func(rs *RunState) error { return rs.Complete(now) }, PhaseCompleted, domain.RunStatusSucceeded},
		{"abort", func(rs *RunState) error { return rs.Abort(now, "a") }, PhaseAborted, domain.RunStatusAborted},
		{"cancel", func(rs *RunState) error { return rs.MarkCancelled(now) }, PhaseCancelled, domain.RunStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := NewRunState(uuid.New(), testRecipe(), nil)
			if err := rs.Start(now, nil); err != nil {
				t.Fatalf("start: %v", err)
			}
			if err := tt.finish(rs); err != nil {
				t.Fatalf("finish: %v", err)
			}
			if rs.Phase() != tt.phase {
				t.Errorf("expected phase %s, got %s", tt.phase, rs.Phase())
			}
			if !rs.Phase().IsTerminal() {
				t.Error("phase should be terminal")
			}
			if got := rs.Report().Status; got != tt.status {
				t.Errorf("expected status %s, got %s", tt.status, got)
			}

			// Из финальной фазы переходов нет.
			if err := rs.Complete(now); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
			if err := rs.RecordOutcome(domain.StepOutcome{Step: "a"}); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestRunState_InvalidStart(t *testing.T) {
	rs := NewRunState(uuid.New(), testRecipe(), nil)

	if err := rs.Complete(time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("complete from pending: expected ErrInvalidTransition, got %v", err)
	}
	if err := rs.Start(time.Now(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rs.Start(time.Now(), nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second start: expected ErrInvalidTransition, got %v", err)
	}
}

func TestRunState_CompleteWithFailures(t *testing.T) {
	rs := NewRunState(uuid.New(), testRecipe(), nil)
	_ = rs.Start(time.Now(), nil)

	_ = rs.RecordOutcome(domain.StepOutcome{Step: "a", Status: domain.StepStatusSucceeded})
	_ = rs.RecordOutcome(domain.StepOutcome{Step: "b", Status: domain.StepStatusFailed})

	if err := rs.Complete(time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rs.Report().Status; got != domain.RunStatusSucceededWithFailures {
		t.Errorf("expected SUCCEEDED_WITH_FAILURES, got %s", got)
	}
}

func TestRunState_TemplateData(t *testing.T) {
	id := uuid.New()
	rs := NewRunState(id, testRecipe(), nil)
	_ = rs.Start(time.Now(), nil)
	_ = rs.RecordOutcome(domain.StepOutcome{Step: "a", Status: domain.StepStatusSucceeded, Result: 5})

	data := rs.TemplateData(map[string]any{"value": 5})

	if data.Recipe != "r" {
		t.Errorf("expected recipe r, got %s", data.Recipe)
	}
	if data.RunID != id.String() {
		t.Errorf("expected run id %s, got %s", id, data.RunID)
	}
	if data.Context["value"] != 5 {
		t.Error("context values should be passed through")
	}
	sd, ok := data.Steps["a"]
	if !ok {
		t.Fatal("step a should be in template data")
	}
	if sd.Status != "SUCCEEDED" || sd.Result != 5 {
		t.Errorf("unexpected step data: %+v", sd)
	}

	// Изменение данных шаблона не затрагивает RunState.
	sd.Status = "changed"
	if rs.TemplateData(nil).Steps["a"].Status != "SUCCEEDED" {
		t.Error("template data should be a copy")
	}
}

func TestRunState_ReportIsCopy(t *testing.T) {
	rs := NewRunState(uuid.New(), testRecipe(), nil)
	_ = rs.Start(time.Now(), nil)
	_ = rs.RecordOutcome(domain.StepOutcome{
		Step:   "a",
		Status: domain.StepStatusFailed,
		Error:  &domain.ErrorDetail{Kind: domain.ErrorKindExecution, Message: "x"},
	})

	report := rs.Report()
	report.Steps[0].Error.Message = "changed"

	if rs.Report().Steps[0].Error.Message != "x" {
		t.Error("Report should return a deep copy")
	}
}

func TestRunState_Stats(t *testing.T) {
	rs := NewRunState(uuid.New(), testRecipe(), nil)
	_ = rs.Start(time.Now(), nil)
	_ = rs.RecordOutcome(domain.StepOutcome{Step: "a", Status: domain.StepStatusSkipped})
	rs.MarkStepRunning("b")

	stats := rs.Stats()
	if stats.TotalSteps != 2 {
		t.Errorf("expected 2 total, got %d", stats.TotalSteps)
	}
	if stats.SkippedSteps != 1 {
		t.Errorf("expected 1 skipped, got %d", stats.SkippedSteps)
	}
	if stats.PendingSteps != 1 {
		t.Errorf("expected 1 pending, got %d", stats.PendingSteps)
	}
	if stats.CurrentStep != "b" {
		t.Errorf("expected current step b, got %s", stats.CurrentStep)
	}
}

func TestPhase_IsTerminal(t *testing.T) {
	if PhasePending.IsTerminal() || PhaseRunning.IsTerminal() {
		t.Error("pending and running are not terminal")
	}
}
