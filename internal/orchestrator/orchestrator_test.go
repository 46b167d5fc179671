package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/engine"
	"github.com/shaiso/Recipes/internal/state"
	"github.com/shaiso/Recipes/internal/steps"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const arithRecipe = `
name: arith
steps:
  - name: init
    module: init_number
    args:
      value: 5
  - name: double
    module: double_number
`

// recorder собирает события для проверок.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Observe(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestOrchestrator(t *testing.T, reg *steps.Registry, observers ...Observer) *Orchestrator {
	t.Helper()
	if reg == nil {
		reg = steps.DefaultRegistry()
	}
	return New(Config{Resolver: reg, Observers: observers})
}

func step(name, module string, args map[string]any) domain.StepDef {
	return domain.StepDef{Name: name, Module: module, Args: args}
}

// --- Scenarios ---

func TestRun_Arith(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	st := state.New()

	report, err := o.RunSource(context.Background(), []byte(arithRecipe), st)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSucceeded, report.Status)
	assert.Equal(t, "arith", report.Recipe)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, "init", report.Steps[0].Step)
	assert.Equal(t, "double", report.Steps[1].Step)
	for _, out := range report.Steps {
		assert.Equal(t, domain.StepStatusSucceeded, out.Status)
		assert.Nil(t, out.Error)
		assert.Positive(t, int64(out.Duration))
	}

	assert.EqualValues(t, 10, st.Get("value", nil))
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
	assert.Equal(t, 0, o.ActiveRunsCount())
}

func TestRun_CriticalMissingModule(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	st, err := state.NewWithValues(map[string]any{"keep": "me"})
	require.NoError(t, err)
	before := st.Snapshot()
	historyBefore := len(st.History(0))

	recipe := &domain.Recipe{
		Name:  "broken",
		Steps: []domain.StepDef{step("s1", "missing_module", nil)},
	}

	report, err := o.Run(context.Background(), recipe, st)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusAborted, report.Status)
	assert.Equal(t, "s1", report.FailedStep)
	require.Len(t, report.Steps, 1)

	out := report.Steps[0]
	assert.Equal(t, domain.StepStatusFailed, out.Status)
	require.NotNil(t, out.Error)
	assert.Equal(t, domain.ErrorKindResolution, out.Error.Kind)
	assert.Equal(t, "missing_module", out.Error.Module)
	assert.Contains(t, out.Error.Message, "missing_module")
	assert.True(t, steps.IsResolutionError(out.Err))
	assert.True(t, errors.Is(out.Err, steps.ErrModuleNotFound))

	assert.Equal(t, before, st.Snapshot())
	assert.Len(t, st.History(0), historyBefore)
}

func TestRun_NonCriticalFailureContinues(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	st := state.New()

	recipe := &domain.Recipe{
		Name: "lenient",
		Steps: []domain.StepDef{
			step("init", steps.ModuleInitNumber, map[string]any{"value": 3}),
			{Name: "missing", Module: "missing_module", Criticality: domain.CriticalityContinue},
			step("double", steps.ModuleDoubleNumber, nil),
		},
	}

	report, err := o.Run(context.Background(), recipe, st)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSucceededWithFailures, report.Status)
	require.Len(t, report.Steps, 3)
	assert.Equal(t, domain.StepStatusFailed, report.Steps[1].Status)
	assert.Equal(t, domain.StepStatusSucceeded, report.Steps[2].Status)
	assert.Equal(t, []string{"missing"}, report.FailedSteps())
	assert.Empty(t, report.FailedStep)
	assert.EqualValues(t, 6, st.Get("value", nil))
}

func TestRun_CriticalFailureStopsLaterSteps(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	st := state.New()

	recipe := &domain.Recipe{
		Name: "stop",
		Steps: []domain.StepDef{
			step("init", steps.ModuleInitNumber, map[string]any{"value": 1}),
			step("boom", steps.ModuleFail, map[string]any{"message": "nope"}),
			step("never", steps.ModuleDoubleNumber, nil),
		},
	}

	report, err := o.Run(context.Background(), recipe, st)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusAborted, report.Status)
	require.Len(t, report.Steps, 2)
	_, ran := report.Outcome("never")
	assert.False(t, ran)

	boom := report.Steps[1]
	assert.Equal(t, domain.ErrorKindExecution, boom.Error.Kind)
	assert.Contains(t, boom.Error.Message, "nope")
	assert.True(t, errors.Is(boom.Err, steps.ErrStepFailed))

	var se *steps.StepExecutionError
	require.True(t, errors.As(boom.Err, &se))
	assert.Equal(t, "boom", se.Step)

	assert.EqualValues(t, 1, st.Get("value", nil))
}

// Записи упавшего некритичного шага не откатываются: откат делает только
// Compensator, и только для Aborted.
func TestRun_NonCriticalPartialWritesRetained(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	st := state.New()

	recipe := &domain.Recipe{
		Name: "partial",
		Steps: []domain.StepDef{
			{
				Name:        "half",
				Module:      steps.ModuleFail,
				Args:        map[string]any{"set_before": map[string]any{"partial": true}},
				Criticality: domain.CriticalityContinue,
			},
		},
	}

	report, err := o.Run(context.Background(), recipe, st)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSucceededWithFailures, report.Status)
	assert.Equal(t, true, st.Get("partial", nil))

	history := st.History(0)
	require.NotEmpty(t, history)
	assert.Equal(t, "step:half", history[len(history)-1].Actor)
}

// --- Source errors ---

func TestRunSource_FormatError(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	report, err := o.RunSource(context.Background(), []byte("name: [unclosed"), state.New())
	assert.Nil(t, report)
	assert.True(t, engine.IsFormatError(err))
}

func TestRunSource_ValidationError(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	report, err := o.RunSource(context.Background(), []byte("name: x\nsteps: []\n"), state.New())
	assert.Nil(t, report)
	assert.True(t, engine.IsValidationError(err))
}

func TestRun_NilArguments(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	recipe := &domain.Recipe{Name: "r", Steps: []domain.StepDef{step("a", "fail", nil)}}

	_, err := o.Run(context.Background(), nil, state.New())
	assert.ErrorIs(t, err, ErrNilRecipe)

	_, err = o.Run(context.Background(), recipe, nil)
	assert.ErrorIs(t, err, ErrNilContext)
}

// --- Step execution ---

func TestRun_PanicIsRecorded(t *testing.T) {
	reg := steps.DefaultRegistry()
	reg.RegisterFunc("panicky", func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
		panic("kaboom")
	})
	o := newTestOrchestrator(t, reg)

	recipe := &domain.Recipe{Name: "p", Steps: []domain.StepDef{step("p", "panicky", nil)}}
	report, err := o.Run(context.Background(), recipe, state.New())
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusAborted, report.Status)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, domain.ErrorKindPanic, report.Steps[0].Error.Kind)
	assert.Contains(t, report.Steps[0].Error.Message, "kaboom")
	assert.ErrorIs(t, report.Steps[0].Err, steps.ErrStepPanic)
}

func TestRun_NonSerializableWrite(t *testing.T) {
	reg := steps.DefaultRegistry()
	reg.RegisterFunc("bad_write", func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
		return nil, req.State.Set("fn", func() {})
	})
	o := newTestOrchestrator(t, reg)

	st := state.New()
	recipe := &domain.Recipe{Name: "s", Steps: []domain.StepDef{step("w", "bad_write", nil)}}
	report, err := o.Run(context.Background(), recipe, st)
	require.NoError(t, err)

	require.Len(t, report.Steps, 1)
	assert.Equal(t, domain.ErrorKindSerialization, report.Steps[0].Error.Kind)
	assert.ErrorIs(t, report.Steps[0].Err, state.ErrNotSerializable)
	assert.Equal(t, 0, st.Len())
}

func TestRun_NonSerializableResult(t *testing.T) {
	reg := steps.DefaultRegistry()
	reg.RegisterFunc("bad_result", func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
		return steps.NewResponse(make(chan int)), nil
	})
	o := newTestOrchestrator(t, reg)

	recipe := &domain.Recipe{Name: "s", Steps: []domain.StepDef{step("r", "bad_result", nil)}}
	report, err := o.Run(context.Background(), recipe, state.New())
	require.NoError(t, err)

	assert.Equal(t, domain.ErrorKindSerialization, report.Steps[0].Error.Kind)
}

func TestRun_WhenSkipsStep(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	st := state.New()

	recipe := &domain.Recipe{
		Name: "cond",
		Steps: []domain.StepDef{
			step("init", steps.ModuleInitNumber, map[string]any{"value": 2}),
			{Name: "big", Module: steps.ModuleDoubleNumber, When: "gt .Context.value 100"},
			{Name: "small", Module: steps.ModuleAddNumber, Args: map[string]any{"amount": 1}, When: "lt .Context.value 100"},
		},
	}

	report, err := o.Run(context.Background(), recipe, st)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSucceeded, report.Status)
	assert.Equal(t, domain.StepStatusSkipped, report.Steps[1].Status)
	assert.Equal(t, domain.StepStatusSucceeded, report.Steps[2].Status)
	assert.EqualValues(t, 3, st.Get("value", nil))
}

func TestRun_WhenTemplateError(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	recipe := &domain.Recipe{
		Name:  "cond",
		Steps: []domain.StepDef{{Name: "bad", Module: steps.ModuleDoubleNumber, When: "{{ .Broken"}},
	}
	report, err := o.Run(context.Background(), recipe, state.New())
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusAborted, report.Status)
	assert.Equal(t, domain.ErrorKindTemplate, report.Steps[0].Error.Kind)
}

func TestRun_TemplateArgs(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	st, err := state.NewWithValues(map[string]any{"user": "ann"})
	require.NoError(t, err)

	recipe := &domain.Recipe{
		Name: "tmpl",
		Steps: []domain.StepDef{
			step("init", steps.ModuleInitNumber, map[string]any{"value": 7}),
			step("greet", steps.ModuleSetValue, map[string]any{
				"key":   "greeting",
				"value": "hi {{ .Context.user }} from {{ .Recipe }} after {{ .Steps.init.Status }}",
			}),
		},
	}

	report, err := o.Run(context.Background(), recipe, st)
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusSucceeded, report.Status)

	assert.Equal(t, "hi ann from tmpl after SUCCEEDED", st.Get("greeting", nil))
	// Аргументы рецепта не меняются после рендеринга.
	assert.Contains(t, recipe.Steps[1].Args["value"], "{{")
}

func TestRun_StepActor(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	st := state.New()

	report, err := o.RunSource(context.Background(), []byte(arithRecipe), st)
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusSucceeded, report.Status)

	history := st.History(0)
	require.Len(t, history, 2)
	assert.Equal(t, "step:init", history[0].Actor)
	assert.Equal(t, "step:double", history[1].Actor)
	assert.EqualValues(t, 5, history[1].OldValue)
}

// --- Cancellation ---

func TestRun_CancelBetweenSteps(t *testing.T) {
	reg := steps.DefaultRegistry()
	o := newTestOrchestrator(t, reg)
	runID := uuid.New()

	reg.RegisterFunc("cancel_me", func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
		assert.True(t, o.Cancel(req.RunID))
		return steps.EmptyResponse(), nil
	})

	recipe := &domain.Recipe{
		Name: "cancel",
		Steps: []domain.StepDef{
			step("first", "cancel_me", nil),
			step("second", steps.ModuleInitNumber, map[string]any{"value": 1}),
		},
	}

	st := state.New()
	report, err := o.RunWithID(context.Background(), runID, recipe, st)
	require.NoError(t, err)

	assert.Equal(t, runID, report.RunID)
	assert.Equal(t, domain.RunStatusCancelled, report.Status)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, domain.StepStatusSucceeded, report.Steps[0].Status)
	assert.Equal(t, 0, st.Len())
	assert.False(t, o.Cancel(runID))
}

func TestRun_ParentContextCancelled(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := o.RunSource(ctx, []byte(arithRecipe), state.New())
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCancelled, report.Status)
	assert.Empty(t, report.Steps)
}

func TestRun_CancelDuringStep(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recipe := &domain.Recipe{
		Name: "slow",
		Steps: []domain.StepDef{
			step("wait", steps.ModuleDelay, map[string]any{"duration_sec": 30}),
			step("after", steps.ModuleInitNumber, map[string]any{"value": 1}),
		},
	}

	time.AfterFunc(20*time.Millisecond, cancel)
	report, err := o.Run(ctx, recipe, state.New())
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCancelled, report.Status)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, domain.StepStatusFailed, report.Steps[0].Status)
}

func TestRun_CriticalFailureDuringCancelAborts(t *testing.T) {
	reg := steps.DefaultRegistry()
	o := New(Config{Resolver: reg, Compensator: NewSnapshotCompensator()})

	reg.RegisterFunc("half_write", func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
		assert.NoError(t, req.State.Set("half", 1))
		assert.True(t, o.Cancel(req.RunID))
		return nil, errors.New("disk full")
	})

	recipe := &domain.Recipe{
		Name: "halfway",
		Steps: []domain.StepDef{
			step("half", "half_write", nil),
			step("after", steps.ModuleInitNumber, map[string]any{"value": 1}),
		},
	}

	st, err := state.NewWithValues(map[string]any{"keep": "me"})
	require.NoError(t, err)

	report, err := o.Run(context.Background(), recipe, st)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusAborted, report.Status)
	assert.Equal(t, "half", report.FailedStep)
	require.Len(t, report.Steps, 1)
	require.Len(t, report.Compensations, 1)
	assert.Equal(t, domain.StepStatusSucceeded, report.Compensations[0].Status)
	assert.Equal(t, map[string]any{"keep": "me"}, st.Snapshot())
}

// --- Compensation ---

func TestRun_ModuleCompensatorOrder(t *testing.T) {
	reg := steps.DefaultRegistry()
	var mu sync.Mutex
	var undone []string
	reg.RegisterFunc("undo", func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
		mu.Lock()
		undone = append(undone, req.Step+":"+steps.GetArgString(req.Args, "tag"))
		mu.Unlock()
		return steps.EmptyResponse(), nil
	})

	o := New(Config{Resolver: reg, Compensator: NewModuleCompensator(reg)})

	recipe := &domain.Recipe{
		Name: "saga",
		Steps: []domain.StepDef{
			{Name: "a", Module: steps.ModuleInitNumber, Args: map[string]any{"value": 1}, Compensate: "undo", CompensateArgs: map[string]any{"tag": "{{ .Recipe }}"}},
			{Name: "b", Module: steps.ModuleDoubleNumber, Compensate: "undo"},
			{Name: "plain", Module: steps.ModuleDoubleNumber},
			{Name: "c", Module: steps.ModuleFail, Compensate: "undo"},
		},
	}

	report, err := o.Run(context.Background(), recipe, state.New())
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusAborted, report.Status)
	assert.Equal(t, []string{"c:", "b:", "a:saga"}, undone)
	require.Len(t, report.Compensations, 3)
	for _, c := range report.Compensations {
		assert.Equal(t, domain.StepStatusSucceeded, c.Status)
		assert.Equal(t, "undo", c.Module)
	}
}

func TestRun_ModuleCompensatorMissingModule(t *testing.T) {
	reg := steps.DefaultRegistry()
	o := New(Config{Resolver: reg, Compensator: NewModuleCompensator(reg)})

	recipe := &domain.Recipe{
		Name:  "saga",
		Steps: []domain.StepDef{{Name: "c", Module: steps.ModuleFail, Compensate: "no_such_undo"}},
	}

	report, err := o.Run(context.Background(), recipe, state.New())
	require.NoError(t, err)

	require.Len(t, report.Compensations, 1)
	assert.Equal(t, domain.StepStatusFailed, report.Compensations[0].Status)
	assert.Equal(t, domain.ErrorKindResolution, report.Compensations[0].Error.Kind)
}

func TestRun_SnapshotCompensatorRestores(t *testing.T) {
	o := New(Config{Resolver: steps.DefaultRegistry(), Compensator: NewSnapshotCompensator()})
	st, err := state.NewWithValues(map[string]any{"value": 1})
	require.NoError(t, err)

	recipe := &domain.Recipe{
		Name: "restore",
		Steps: []domain.StepDef{
			step("double", steps.ModuleDoubleNumber, nil),
			step("extra", steps.ModuleSetValue, map[string]any{"key": "extra", "value": "x"}),
			step("boom", steps.ModuleFail, nil),
		},
	}

	report, err := o.Run(context.Background(), recipe, st)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusAborted, report.Status)
	require.Len(t, report.Compensations, 1)
	assert.Equal(t, SnapshotRestoreModule, report.Compensations[0].Module)
	assert.Equal(t, map[string]any{"value": 1}, st.Snapshot())

	history := st.History(1)
	require.Len(t, history, 1)
	assert.Equal(t, state.RollbackActor, history[0].Actor)
}

func TestRun_SnapshotCompensatorKeepsOtherRunsWrites(t *testing.T) {
	reg := steps.DefaultRegistry()
	o := New(Config{Resolver: reg, Compensator: NewSnapshotCompensator()})

	st, err := state.NewWithValues(map[string]any{"value": 1})
	require.NoError(t, err)

	other := &domain.Recipe{
		Name:  "other",
		Steps: []domain.StepDef{step("mark", steps.ModuleSetValue, map[string]any{"key": "theirs", "value": 2})},
	}

	// Второй run пишет в тот же Context, пока первый ещё выполняется.
	reg.RegisterFunc("run_other", func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
		report, err := o.Run(ctx, other, st)
		if err != nil {
			return nil, err
		}
		return steps.NewResponse(string(report.Status)), nil
	})

	recipe := &domain.Recipe{
		Name: "mine",
		Steps: []domain.StepDef{
			step("double", steps.ModuleDoubleNumber, nil),
			step("mine", steps.ModuleSetValue, map[string]any{"key": "mine", "value": "x"}),
			step("other", "run_other", nil),
			step("boom", steps.ModuleFail, nil),
		},
	}

	report, err := o.Run(context.Background(), recipe, st)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusAborted, report.Status)
	require.Len(t, report.Compensations, 1)
	assert.Equal(t, domain.StepStatusSucceeded, report.Compensations[0].Status)
	assert.Equal(t, map[string]any{"value": 1, "theirs": 2}, st.Snapshot())
}

func TestRun_CompensatorNotCalledOnSuccess(t *testing.T) {
	called := false
	comp := compensatorFunc(func(ctx context.Context, req *CompensationRequest) []domain.StepOutcome {
		called = true
		return nil
	})
	o := New(Config{Compensator: comp})

	report, err := o.RunSource(context.Background(), []byte(arithRecipe), state.New())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, report.Status)
	assert.False(t, called)
	assert.Empty(t, report.Compensations)
}

type compensatorFunc func(ctx context.Context, req *CompensationRequest) []domain.StepOutcome

func (f compensatorFunc) Compensate(ctx context.Context, req *CompensationRequest) []domain.StepOutcome {
	return f(ctx, req)
}

// --- Observers ---

func TestRun_EventsSequence(t *testing.T) {
	rec := &recorder{}
	o := newTestOrchestrator(t, nil, rec)

	report, err := o.RunSource(context.Background(), []byte(arithRecipe), state.New())
	require.NoError(t, err)

	assert.Equal(t, []domain.EventType{
		domain.EventRunStarted,
		domain.EventStepStarted,
		domain.EventStepSucceeded,
		domain.EventStepStarted,
		domain.EventStepSucceeded,
		domain.EventRunCompleted,
	}, rec.types())

	for _, ev := range rec.events {
		assert.Equal(t, report.RunID, ev.RunID)
		assert.Equal(t, "arith", ev.Recipe)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestRun_EventsOnAbort(t *testing.T) {
	rec := &recorder{}
	o := New(Config{Observers: []Observer{rec}, Compensator: NewSnapshotCompensator()})

	recipe := &domain.Recipe{Name: "x", Steps: []domain.StepDef{step("m", "missing_module", nil)}}
	_, err := o.Run(context.Background(), recipe, state.New())
	require.NoError(t, err)

	assert.Equal(t, []domain.EventType{
		domain.EventRunStarted,
		domain.EventStepStarted,
		domain.EventStepFailed,
		domain.EventStepCompensated,
		domain.EventRunAborted,
	}, rec.types())
}

func TestMultiObserver_RecoversPanic(t *testing.T) {
	rec := &recorder{}
	bad := ObserverFunc(func(ctx context.Context, ev domain.Event) { panic("observer") })
	m := NewMultiObserver(nil, bad, nil, rec)

	assert.Equal(t, 2, m.Len())
	assert.NotPanics(t, func() {
		m.Observe(context.Background(), domain.Event{Type: domain.EventRunStarted})
	})
	assert.Equal(t, []domain.EventType{domain.EventRunStarted}, rec.types())
}

// --- Orchestrator lifecycle ---

func TestOrchestrator_ActiveRunStats(t *testing.T) {
	reg := steps.DefaultRegistry()
	o := newTestOrchestrator(t, reg)

	var stats RunStats
	var found bool
	reg.RegisterFunc("peek", func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
		stats, found = o.GetActiveRunStats(req.RunID)
		assert.True(t, o.IsRunActive(req.RunID))
		assert.Equal(t, 1, o.ActiveRunsCount())
		assert.Equal(t, []uuid.UUID{req.RunID}, o.ActiveRunIDs())
		return steps.EmptyResponse(), nil
	})

	recipe := &domain.Recipe{
		Name: "peek",
		Steps: []domain.StepDef{
			step("init", steps.ModuleInitNumber, map[string]any{"value": 1}),
			step("peek", "peek", nil),
			step("double", steps.ModuleDoubleNumber, nil),
		},
	}

	_, err := o.Run(context.Background(), recipe, state.New())
	require.NoError(t, err)

	require.True(t, found)
	assert.Equal(t, PhaseRunning, stats.Phase)
	assert.Equal(t, 3, stats.TotalSteps)
	assert.Equal(t, 1, stats.SucceededSteps)
	assert.Equal(t, 2, stats.PendingSteps)
	assert.Equal(t, "peek", stats.CurrentStep)
	assert.Equal(t, 0, o.ActiveRunsCount())
}

func TestOrchestrator_DuplicateRunID(t *testing.T) {
	reg := steps.DefaultRegistry()
	o := newTestOrchestrator(t, reg)
	runID := uuid.New()

	var nestedErr error
	reg.RegisterFunc("nested", func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
		inner := &domain.Recipe{Name: "inner", Steps: []domain.StepDef{step("x", steps.ModuleInitNumber, map[string]any{"value": 1})}}
		_, nestedErr = o.RunWithID(ctx, req.RunID, inner, state.New())
		return steps.EmptyResponse(), nil
	})

	recipe := &domain.Recipe{Name: "outer", Steps: []domain.StepDef{step("n", "nested", nil)}}
	_, err := o.RunWithID(context.Background(), runID, recipe, state.New())
	require.NoError(t, err)
	assert.ErrorIs(t, nestedErr, ErrRunAlreadyActive)
}

func TestOrchestrator_Stop(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	assert.False(t, o.IsStopped())

	o.Stop()
	assert.True(t, o.IsStopped())

	_, err := o.RunSource(context.Background(), []byte(arithRecipe), state.New())
	assert.ErrorIs(t, err, ErrOrchestratorStopped)
}

func TestOrchestrator_NoRunsRegisteredAfterStop(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	o.Stop()

	recipe := &domain.Recipe{Name: "late", Steps: []domain.StepDef{step("s", steps.ModuleInitNumber, map[string]any{"value": 1})}}
	rs := NewRunState(uuid.New(), recipe, func() {})
	assert.ErrorIs(t, o.addActiveRun(rs), ErrOrchestratorStopped)
	assert.Equal(t, 0, o.ActiveRunsCount())

	_, err := o.RunWithID(context.Background(), uuid.New(), recipe, state.New())
	assert.ErrorIs(t, err, ErrOrchestratorStopped)
}

func TestOrchestrator_Modules(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	assert.Contains(t, o.Modules(), steps.ModuleInitNumber)
}

func TestRun_ConcurrentRunsSharedContext(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	st, err := state.NewWithValues(map[string]any{"counter": 0})
	require.NoError(t, err)

	recipe := &domain.Recipe{
		Name:  "inc",
		Steps: []domain.StepDef{step("inc", steps.ModuleAddNumber, map[string]any{"key": "counter", "amount": 1})},
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := o.Run(context.Background(), recipe, st)
			assert.NoError(t, err)
			assert.Equal(t, domain.RunStatusSucceeded, report.Status)
		}()
	}
	wg.Wait()

	// add_number читает и пишет двумя операциями: гонка между runs
	// допустима, но значение остаётся числом в пределах [1, 10].
	v, ok := st.Get("counter", nil).(int)
	require.True(t, ok)
	assert.GreaterOrEqual(t, v, 1)
	assert.LessOrEqual(t, v, 10)
	assert.Len(t, st.History(0), 11)
}

func TestNewCompensator(t *testing.T) {
	registry := steps.DefaultRegistry()

	comp, err := NewCompensator(RollbackNone, registry)
	require.NoError(t, err)
	assert.Nil(t, comp)

	comp, err = NewCompensator("", registry)
	require.NoError(t, err)
	assert.IsType(t, &ModuleCompensator{}, comp)

	comp, err = NewCompensator(RollbackSnapshot, registry)
	require.NoError(t, err)
	assert.IsType(t, &SnapshotCompensator{}, comp)

	comp, err = NewCompensator(RollbackFull, registry)
	require.NoError(t, err)
	assert.Len(t, comp, 2)

	_, err = NewCompensator("later", registry)
	assert.ErrorIs(t, err, ErrUnknownRollback)
}
