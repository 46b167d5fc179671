// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go         — Handler с DI (движок, хранилище runs, контексты, publisher)
//   - routes.go          — регистрация маршрутов
//   - middleware.go      — middleware (logging, recovery)
//   - response.go        — унифицированные JSON-ответы и обработка ошибок
//   - dto.go             — Data Transfer Objects (request/response)
//   - recipe_handler.go  — проверка рецептов и список модулей
//   - run_handler.go     — обработчики для /runs
//   - context_handler.go — обработчики для /contexts
//
// Ошибки формата рецепта возвращаются как 400 FORMAT_ERROR, ошибки
// структуры как 422 VALIDATION_ERROR. Если run начался, ответ всегда
// содержит отчёт, в том числе для ABORTED.
package api
