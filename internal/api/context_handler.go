package api

import (
	"net/http"
	"strconv"
)

// ListContexts возвращает имена общих контекстов, загруженных в процесс.
// GET /api/v1/contexts
func (h *Handler) ListContexts(w http.ResponseWriter, r *http.Request) {
	names := h.contexts.Names()
	List(w, names, len(names))
}

// GetContext возвращает значения и журнал общего контекста.
// GET /api/v1/contexts/{name}?history=N
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	history := 0
	if v := r.URL.Query().Get("history"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			BadRequest(w, "invalid history")
			return
		}
		history = n
	}

	st, err := h.contexts.Get(r.Context(), name)
	if HandleRepoError(w, h.logger, err, "context not found") {
		return
	}

	Success(w, ContextFromState(name, st, history))
}
