// Package domain содержит доменные типы системы рецептов.
//
//   - recipe.go   — Recipe и StepDef (результат парсинга рецепта)
//   - status.go   — RunStatus, StepStatus, Criticality
//   - report.go   — ExecutionReport и StepOutcome
//   - event.go    — события движка для наблюдателей
//   - run.go      — сохранённая запись о выполнении
//   - schedule.go — расписания запуска
package domain
