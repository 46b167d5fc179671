// Package worker выполняет рецепты по запросам из очереди.
//
// # Обзор
//
// Worker получает сообщения run.requested из очереди runs.requested и
// для каждого:
//
//   - Выбирает Context: общий именованный (через contexts.Registry) или
//     свежий с начальными значениями из запроса
//   - Выполняет рецепт через Runner (orchestrator.Orchestrator)
//   - Сохраняет domain.Run с отчётом через RunStore
//   - Сохраняет общий Context обратно в хранилище
//
// Workers масштабируются горизонтально, но общий Context живёт в памяти
// одного процесса: runs с одним context_name должны попадать на один
// worker, иначе последнее сохранение перезапишет остальные.
//
// # Ошибки
//
// Рецепт с ошибкой формата или валидации не выполняется: worker сохраняет
// run со статусом REJECTED и подтверждает сообщение. Повторная доставка
// уже выполненного run (тот же run_id) пропускается.
//
// Временные ошибки (хранилище недоступно) возвращают сообщение в очередь;
// при повторной неудаче оно уходит в DLQ.
//
// # Пример
//
//	w := worker.New(worker.Config{
//	    Runner:   orch,
//	    Runs:     runRepo,
//	    Contexts: contexts.NewRegistry(contextRepo, logger),
//	    Conn:     mqConn,
//	    Logger:   logger,
//	})
//	if err := w.Start(ctx); err != nil { ... }
//	defer w.Stop()
package worker
