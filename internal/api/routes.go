package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	middlewares := []Middleware{Recovery(h.logger), Logging(h.logger)}
	if h.metrics != nil {
		middlewares = append(middlewares, h.metrics.Middleware())
	}
	chain := Chain(middlewares...)

	// Recipes
	mux.Handle("POST /api/v1/recipes/validate", chain(http.HandlerFunc(h.ValidateRecipe)))
	mux.Handle("GET /api/v1/modules", chain(http.HandlerFunc(h.ListModules)))

	// Runs
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("POST /api/v1/runs", chain(http.HandlerFunc(h.CreateRun)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("POST /api/v1/runs/{id}/cancel", chain(http.HandlerFunc(h.CancelRun)))

	// Contexts
	mux.Handle("GET /api/v1/contexts", chain(http.HandlerFunc(h.ListContexts)))
	mux.Handle("GET /api/v1/contexts/{name}", chain(http.HandlerFunc(h.GetContext)))
}
