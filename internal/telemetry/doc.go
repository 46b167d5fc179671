// Package telemetry собирает логирование и метрики движка.
//
// logging.go настраивает slog (JSON или text), переносит логгер через
// context.Context и добавляет атрибуты run_id, recipe и schedule.
// metrics.go регистрирует Prometheus метрики runs и шагов; Metrics
// подключается к оркестратору как Observer.
package telemetry
