package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/state"
)

// Run DTOs

// CreateRunRequest — запрос на запуск рецепта.
type CreateRunRequest struct {
	// Recipe — текст рецепта (YAML или JSON).
	Recipe string `json:"recipe"`

	// Context — начальные значения свежего контекста.
	Context map[string]any `json:"context,omitempty"`

	// ContextName — имя общего контекста. Имеет приоритет над Context.
	ContextName string `json:"context_name,omitempty"`

	// Async — отправить в очередь вместо синхронного выполнения.
	Async bool `json:"async,omitempty"`
}

// CreateRunResponse — результат синхронного run.
type CreateRunResponse struct {
	RunID   uuid.UUID               `json:"run_id"`
	Report  *domain.ExecutionReport `json:"report"`
	Context map[string]any          `json:"context"`
}

// AcceptedRunResponse — ответ на асинхронный run.
type AcceptedRunResponse struct {
	RunID uuid.UUID `json:"run_id"`
}

// CancelRunResponse — ответ на отмену run.
type CancelRunResponse struct {
	RunID     uuid.UUID `json:"run_id"`
	Cancelled bool      `json:"cancelled"`
}

// RunResponse — ответ с run.
type RunResponse struct {
	ID          uuid.UUID               `json:"id"`
	Recipe      string                  `json:"recipe"`
	Status      domain.RunStatus        `json:"status"`
	ContextName string                  `json:"context_name,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Report      *domain.ExecutionReport `json:"report,omitempty"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	FinishedAt  *time.Time              `json:"finished_at,omitempty"`
	DurationMs  int64                   `json:"duration_ms"`
	CreatedAt   time.Time               `json:"created_at"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:          r.ID,
		Recipe:      r.Recipe,
		Status:      r.Status,
		ContextName: r.ContextName,
		Error:       r.Error,
		Report:      r.Report,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		DurationMs:  r.Duration().Milliseconds(),
		CreatedAt:   r.CreatedAt,
	}
}

// Context DTOs

// ContextResponse — снимок общего контекста.
type ContextResponse struct {
	Name    string         `json:"name"`
	Values  map[string]any `json:"values"`
	History []state.Change `json:"history"`
}

// ContextFromState снимает ответ с контекста. history <= 0 — весь журнал.
func ContextFromState(name string, st *state.Context, history int) ContextResponse {
	return ContextResponse{
		Name:    name,
		Values:  st.Snapshot(),
		History: st.History(history),
	}
}
