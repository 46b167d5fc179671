package domain

// RunStatus — итоговый статус выполнения рецепта.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ SUCCEEDED_WITH_FAILURES (упали только некритичные шаги)
//	                  ↘ ABORTED (упал критичный шаг)
//	                  ↘ CANCELLED (отмена между шагами)
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все шаги выполнены или пропущены.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusSucceededWithFailures — run дошёл до конца, но часть некритичных шагов упала.
	RunStatusSucceededWithFailures RunStatus = "SUCCEEDED_WITH_FAILURES"

	// RunStatusAborted — run прерван на критичном шаге.
	RunStatusAborted RunStatus = "ABORTED"

	// RunStatusCancelled — run отменён извне.
	RunStatusCancelled RunStatus = "CANCELLED"

	// RunStatusRejected — рецепт не прошёл загрузку или валидацию, шаги не запускались.
	// Используется только для сохранённых записей Run.
	RunStatusRejected RunStatus = "REJECTED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusSucceededWithFailures,
		RunStatusAborted, RunStatusCancelled, RunStatusRejected:
		return true
	default:
		return false
	}
}

// IsSuccess возвращает true, если run дошёл до конца рецепта.
func (s RunStatus) IsSuccess() bool {
	return s == RunStatusSucceeded || s == RunStatusSucceededWithFailures
}

// StepStatus — статус отдельного шага в отчёте.
type StepStatus string

const (
	// StepStatusSucceeded — шаг выполнен успешно.
	StepStatusSucceeded StepStatus = "SUCCEEDED"

	// StepStatusFailed — шаг не найден, упал или вернул ошибку.
	StepStatusFailed StepStatus = "FAILED"

	// StepStatusSkipped — условие when вернуло false.
	StepStatusSkipped StepStatus = "SKIPPED"
)

// Criticality — поведение run при падении шага.
type Criticality string

const (
	// CriticalityAbort — падение шага прерывает run. Значение по умолчанию.
	CriticalityAbort Criticality = "abort"

	// CriticalityContinue — падение шага фиксируется, run продолжается.
	CriticalityContinue Criticality = "continue"
)

// IsValid проверяет, что значение из допустимого набора.
func (c Criticality) IsValid() bool {
	return c == CriticalityAbort || c == CriticalityContinue
}

// ParseCriticality парсит строку в Criticality.
// Пустая строка даёт CriticalityAbort, неизвестное значение — false.
func ParseCriticality(s string) (Criticality, bool) {
	switch s {
	case "", string(CriticalityAbort):
		return CriticalityAbort, true
	case string(CriticalityContinue):
		return CriticalityContinue, true
	default:
		return "", false
	}
}
