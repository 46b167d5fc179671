package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — периодический запуск рецепта из файла.
//
// Определение (имя, рецепт, cron или интервал) берётся из конфигурации
// сервиса; в базе хранится только состояние: NextDueAt, LastRunAt,
// LastRunID.
type Schedule struct {
	Name string `json:"name" yaml:"name"`

	// RecipePath — файл рецепта относительно каталога рецептов.
	RecipePath string `json:"recipe_path" yaml:"recipe"`

	// ContextName — общий контекст, в котором выполняются runs.
	// Пустое значение: каждый run получает свежий контекст.
	ContextName string `json:"context_name,omitempty" yaml:"context_name"`

	// CronExpr — пятипольное cron-выражение ("*/5 * * * *").
	// Имеет приоритет над IntervalSec.
	CronExpr string `json:"cron_expr,omitempty" yaml:"cron"`

	IntervalSec int `json:"interval_sec,omitempty" yaml:"interval_sec"`

	// Timezone — IANA имя для cron. Пустое или неизвестное: UTC.
	Timezone string `json:"timezone" yaml:"timezone"`

	Enabled bool `json:"enabled" yaml:"enabled"`

	NextDueAt *time.Time `json:"next_due_at,omitempty" yaml:"-"`
	LastRunAt *time.Time `json:"last_run_at,omitempty" yaml:"-"`
	LastRunID *uuid.UUID `json:"last_run_id,omitempty" yaml:"-"`
}

// IsCron сообщает, задан ли cron.
func (s *Schedule) IsCron() bool { return s.CronExpr != "" }

// IsInterval сообщает, работает ли расписание по интервалу.
func (s *Schedule) IsInterval() bool { return !s.IsCron() && s.IntervalSec > 0 }

// IsDue — включено и NextDueAt не позже now. Без NextDueAt расписание
// ещё не инициализировано и не срабатывает.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Enabled && s.NextDueAt != nil && !now.Before(*s.NextDueAt)
}

// RecordRun отмечает отправленный run и сдвигает NextDueAt.
func (s *Schedule) RecordRun(runID uuid.UUID, at, nextDue time.Time) {
	s.LastRunAt = &at
	s.LastRunID = &runID
	s.NextDueAt = &nextDue
}
