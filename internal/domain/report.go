package domain

import (
	"time"

	"github.com/google/uuid"
)

// ErrorKind — категория ошибки шага в отчёте.
type ErrorKind string

const (
	// ErrorKindResolution — модуль не найден в реестре.
	ErrorKindResolution ErrorKind = "resolution"

	// ErrorKindExecution — модуль вернул ошибку.
	ErrorKindExecution ErrorKind = "execution"

	// ErrorKindSerialization — модуль попытался записать несериализуемое значение.
	ErrorKindSerialization ErrorKind = "serialization"

	// ErrorKindTemplate — не удалось отрендерить аргументы или условие.
	ErrorKindTemplate ErrorKind = "template"

	// ErrorKindPanic — модуль запаниковал.
	ErrorKindPanic ErrorKind = "panic"
)

// ErrorDetail — описание ошибки шага.
type ErrorDetail struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Module  string    `json:"module,omitempty"`
}

// StepOutcome — результат выполнения одного шага.
type StepOutcome struct {
	// Step — имя шага.
	Step string `json:"step"`

	// Module — модуль, которым выполнялся шаг.
	Module string `json:"module"`

	// Status — итог шага.
	Status StepStatus `json:"status"`

	// Error — детали ошибки, только для FAILED.
	Error *ErrorDetail `json:"error,omitempty"`

	// StartedAt — время начала шага.
	StartedAt time.Time `json:"started_at"`

	// Duration — длительность шага. Записывается при любом исходе.
	Duration time.Duration `json:"duration_ns"`

	// Result — необязательный результат, который вернул модуль.
	Result any `json:"result,omitempty"`

	// Err — исходная ошибка для errors.Is/As. Не сериализуется.
	Err error `json:"-"`
}

// Failed возвращает true, если шаг упал.
func (o StepOutcome) Failed() bool {
	return o.Status == StepStatusFailed
}

// ExecutionReport — итоговый отчёт о выполнении рецепта.
//
// Отчёт возвращается всегда, если выполнение началось. В Steps перечислены
// только шаги, до которых дошло выполнение: после критичного падения
// оставшиеся шаги в отчёт не попадают.
type ExecutionReport struct {
	// RunID — идентификатор запуска.
	RunID uuid.UUID `json:"run_id"`

	// Recipe — имя рецепта.
	Recipe string `json:"recipe"`

	// Status — итоговый статус run.
	Status RunStatus `json:"status"`

	// Steps — результаты шагов в порядке выполнения.
	Steps []StepOutcome `json:"steps"`

	// Compensations — результаты компенсирующих действий после прерывания.
	Compensations []StepOutcome `json:"compensations,omitempty"`

	// FailedStep — имя шага, который прервал run.
	FailedStep string `json:"failed_step,omitempty"`

	// StartedAt — время начала run.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения run.
	FinishedAt time.Time `json:"finished_at"`
}

// Duration возвращает продолжительность выполнения.
func (r *ExecutionReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome возвращает результат шага по имени.
func (r *ExecutionReport) Outcome(step string) (StepOutcome, bool) {
	for _, o := range r.Steps {
		if o.Step == step {
			return o, true
		}
	}
	return StepOutcome{}, false
}

// FailedSteps возвращает имена упавших шагов.
func (r *ExecutionReport) FailedSteps() []string {
	var failed []string
	for _, o := range r.Steps {
		if o.Failed() {
			failed = append(failed, o.Step)
		}
	}
	return failed
}

// Clone возвращает независимую копию отчёта.
// Result шагов копируется поверхностно: он уже прошёл проверку сериализуемости
// и не меняется после записи.
func (r *ExecutionReport) Clone() *ExecutionReport {
	c := *r
	c.Steps = cloneOutcomes(r.Steps)
	c.Compensations = cloneOutcomes(r.Compensations)
	return &c
}

func cloneOutcomes(in []StepOutcome) []StepOutcome {
	if in == nil {
		return nil
	}
	out := make([]StepOutcome, len(in))
	for i, o := range in {
		out[i] = o
		if o.Error != nil {
			e := *o.Error
			out[i].Error = &e
		}
	}
	return out
}
