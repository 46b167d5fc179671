// Package orchestrator выполняет рецепты.
//
// Orchestrator отвечает за:
//   - Проверку рецепта перед запуском
//   - Последовательное выполнение шагов через steps.Resolver
//   - Рендеринг аргументов и условий when
//   - Запись результата каждого шага в ExecutionReport
//   - Прерывание run при падении критичного шага и откат через Compensator
//   - Отправку событий наблюдателям (Observer)
//
// Фазы run: Pending → Running → Completed | Aborted | Cancelled.
// Отмена проверяется между шагами. Отчёт возвращается всегда,
// если выполнение началось.
package orchestrator
