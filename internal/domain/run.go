package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — сохранённая запись о выполнении рецепта.
//
// Run создаётся когда:
// - Пользователь запускает рецепт через API/CLI
// - Scheduler запускает рецепт по расписанию
// - Worker получает запрос из очереди runs.requested
type Run struct {
	// ID — уникальный идентификатор run (совпадает с Report.RunID).
	ID uuid.UUID `json:"id"`

	// Recipe — имя рецепта.
	Recipe string `json:"recipe"`

	// Status — итоговый статус.
	Status RunStatus `json:"status"`

	// ContextName — имя общего контекста, если run работал с ним.
	ContextName string `json:"context_name,omitempty"`

	// Report — отчёт о выполнении. Nil для REJECTED.
	Report *ExecutionReport `json:"report,omitempty"`

	// Error — текст ошибки загрузки/валидации для REJECTED.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// NewRunFromReport создаёт запись Run по отчёту.
func NewRunFromReport(report *ExecutionReport, contextName string) *Run {
	started := report.StartedAt
	finished := report.FinishedAt
	return &Run{
		ID:          report.RunID,
		Recipe:      report.Recipe,
		Status:      report.Status,
		ContextName: contextName,
		Report:      report,
		StartedAt:   &started,
		FinishedAt:  &finished,
		CreatedAt:   time.Now(),
	}
}

// NewRejectedRun создаёт запись Run для рецепта, который не прошёл валидацию.
func NewRejectedRun(id uuid.UUID, recipe, contextName string, err error) *Run {
	now := time.Now()
	return &Run{
		ID:          id,
		Recipe:      recipe,
		Status:      RunStatusRejected,
		ContextName: contextName,
		Error:       err.Error(),
		FinishedAt:  &now,
		CreatedAt:   now,
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}
