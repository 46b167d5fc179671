package api

import (
	"io"
	"net/http"

	"github.com/shaiso/Recipes/internal/engine"
)

// maxRecipeBytes ограничивает размер тела запроса с рецептом.
const maxRecipeBytes = 1 << 20

// ValidateRecipe разбирает и проверяет рецепт без выполнения.
// POST /api/v1/recipes/validate (тело — текст рецепта)
func (h *Handler) ValidateRecipe(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRecipeBytes))
	if err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	recipe, err := engine.LoadRecipe(raw)
	if HandleRecipeError(w, err) {
		return
	}
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, recipe)
}

// ListModules возвращает зарегистрированные модули.
// GET /api/v1/modules
func (h *Handler) ListModules(w http.ResponseWriter, r *http.Request) {
	modules := h.engine.Modules()
	List(w, modules, len(modules))
}
