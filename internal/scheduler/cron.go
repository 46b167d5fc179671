package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Recipes/internal/domain"
)

// cronParser — парсер cron-выражений (5 полей, без секунд).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CalculateNextDue вычисляет следующее время запуска для schedule.
// Для интервалов просто добавляет IntervalSec к from.
//
// Учитывает timezone schedule.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc := location(sched.Timezone)
	fromInTz := from.In(loc)

	if sched.IsCron() {
		return calculateNextCron(sched.CronExpr, fromInTz)
	}

	if sched.IsInterval() {
		return calculateNextInterval(sched.IntervalSec, fromInTz), nil
	}

	return time.Time{}, fmt.Errorf("%w: %s: neither cron nor interval_sec", ErrInvalidSchedule, sched.Name)
}

// location загружает timezone, при ошибке или пустом имени — UTC.
func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// calculateNextCron вычисляет следующее время по cron-выражению.
func calculateNextCron(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}

	return schedule.Next(from).UTC(), nil
}

// calculateNextInterval вычисляет следующее время по интервалу.
func calculateNextInterval(intervalSec int, from time.Time) time.Time {
	return from.Add(time.Duration(intervalSec) * time.Second).UTC()
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// ValidateSchedule проверяет расписание целиком: имя, рецепт, cron или интервал.
func ValidateSchedule(sched *domain.Schedule) error {
	if sched.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSchedule)
	}
	if sched.RecipePath == "" {
		return fmt.Errorf("%w: %s: recipe is required", ErrInvalidSchedule, sched.Name)
	}
	if sched.IsCron() {
		if err := ValidateCronExpr(sched.CronExpr); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSchedule, sched.Name, err)
		}
		return nil
	}
	if !sched.IsInterval() {
		return fmt.Errorf("%w: %s: neither cron nor interval_sec", ErrInvalidSchedule, sched.Name)
	}
	return nil
}
