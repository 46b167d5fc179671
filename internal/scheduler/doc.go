// Package scheduler запускает рецепты по расписанию.
//
// Расписания задаются в конфигурации (schedules). Scheduler периодически
// проверяет расписания с истекшим next_due_at и отправляет run через Submitter:
//   - LocalSubmitter выполняет рецепт в этом же процессе (worker.Worker)
//   - QueueSubmitter публикует запрос в очередь runs.requested
//
// Структура:
//   - scheduler.go — основная логика Scheduler (Init, Tick, processSchedule)
//   - submitter.go — способы отправки run
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Run ID вычисляется из имени расписания и next_due_at, поэтому повторная
// отправка после сбоя отбрасывается worker'ом как дубликат.
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Schedules:  cfg.Schedules,
//	    RecipesDir: cfg.RecipesDir,
//	    Submitter:  scheduler.QueueSubmitter{Publisher: publisher},
//	    State:      repo.NewScheduleRepo(pool),
//	    Logger:     logger,
//	})
//	if err := sched.Init(ctx); err != nil { ... }
//	sched.Run(ctx, time.Second)
//
// Leader election не реализуется здесь: в cmd/recipes-scheduler Tick
// вызывает только процесс, удерживающий pg_try_advisory_lock.
package scheduler
