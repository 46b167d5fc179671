package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/engine"
	"github.com/shaiso/Recipes/internal/mq"
	"github.com/shaiso/Recipes/internal/orchestrator"
	"github.com/shaiso/Recipes/internal/repo"
	"github.com/shaiso/Recipes/internal/state"
	"github.com/shaiso/Recipes/internal/telemetry"
)

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?recipe=...&status=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		List(w, []RunResponse{}, 0)
		return
	}

	q := r.URL.Query()
	filter := repo.RunFilter{
		Recipe: q.Get("recipe"),
		Status: domain.RunStatus(q.Get("status")),
		Limit:  parseIntDefault(q.Get("limit"), 50),
		Offset: parseIntDefault(q.Get("offset"), 0),
	}

	runs, err := h.runs.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// CreateRun запускает рецепт.
// POST /api/v1/runs
//
// Синхронный run выполняется в рамках запроса и возвращает отчёт и
// итоговый контекст. Отчёт возвращается для любого итогового статуса,
// включая ABORTED. С async=true запрос уходит в очередь runs.requested.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Recipe == "" {
		BadRequest(w, "recipe is required")
		return
	}

	runID := uuid.New()
	if req.Async {
		h.enqueueRun(w, r, runID, req)
		return
	}

	logger := telemetry.WithRunID(h.logger, runID.String())

	// 1. Контекст
	var (
		st  *state.Context
		err error
	)
	if req.ContextName != "" {
		st, err = h.contexts.Acquire(r.Context(), req.ContextName)
	} else {
		st, err = state.NewWithValues(req.Context)
	}
	if HandleRecipeError(w, err) {
		return
	}
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	// 2. Выполнение
	report, err := h.engine.RunSourceWithID(r.Context(), runID, []byte(req.Recipe), st)
	if err != nil {
		if engine.IsFormatError(err) || engine.IsValidationError(err) {
			h.save(r, domain.NewRejectedRun(runID, engine.RecipeName([]byte(req.Recipe)), req.ContextName, err))
			HandleRecipeError(w, err)
			return
		}
		if errors.Is(err, orchestrator.ErrOrchestratorStopped) {
			Unavailable(w, "engine is stopped")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	// 3. Сохранение
	h.save(r, domain.NewRunFromReport(report, req.ContextName))
	if req.ContextName != "" {
		if err := h.contexts.Persist(r.Context(), req.ContextName); err != nil {
			logger.Error("failed to persist shared context", "context", req.ContextName, "error", err)
		}
	}

	Success(w, CreateRunResponse{
		RunID:   runID,
		Report:  report,
		Context: st.Snapshot(),
	})
}

// enqueueRun публикует запрос на run в очередь.
func (h *Handler) enqueueRun(w http.ResponseWriter, r *http.Request, runID uuid.UUID, req CreateRunRequest) {
	if h.publisher == nil {
		Unavailable(w, "run queue is not configured")
		return
	}

	// Формат проверяется до публикации, чтобы не гонять заведомо плохой рецепт через брокер
	if _, err := engine.LoadRecipe([]byte(req.Recipe)); HandleRecipeError(w, err) {
		return
	}

	err := h.publisher.PublishRunRequested(r.Context(), mq.RunRequestedPayload{
		RunID:       runID,
		Recipe:      req.Recipe,
		Context:     req.Context,
		ContextName: req.ContextName,
		Source:      "api",
	})
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: AcceptedRunResponse{RunID: runID}})
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}
	if h.runs == nil {
		NotFound(w, "run not found")
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// CancelRun отменяет активный run. Отмена срабатывает между шагами.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if h.engine.Cancel(id) {
		JSON(w, http.StatusAccepted, DataResponse{Data: CancelRunResponse{RunID: id, Cancelled: true}})
		return
	}

	// Не активен в этом процессе: либо уже завершён, либо неизвестен
	if h.runs == nil {
		NotFound(w, "run not found")
		return
	}
	run, err := h.runs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}
	if run.IsFinished() {
		InvalidState(w, "run is already finished")
		return
	}
	Conflict(w, "run is not active in this process")
}

// save сохраняет run, ошибки только логируются.
func (h *Handler) save(r *http.Request, run *domain.Run) {
	if h.runs == nil {
		return
	}
	if err := h.runs.Save(r.Context(), run); err != nil {
		h.logger.Error("failed to save run", "run_id", run.ID, "error", err)
	}
}

// parseIntDefault парсит неотрицательное целое, иначе возвращает defaultVal.
func parseIntDefault(s string, defaultVal int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
