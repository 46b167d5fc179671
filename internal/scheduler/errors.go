package scheduler

import "errors"

var (
	// ErrInvalidSchedule — расписание задано некорректно.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrNoSubmitter — не задан способ запуска run.
	ErrNoSubmitter = errors.New("scheduler: submitter is required")
)
