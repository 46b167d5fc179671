package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Recipes/internal/domain"
)

// ScheduleRepo хранит состояние расписаний между перезапусками.
//
// Сами расписания задаются в конфигурации; в БД лежат только
// next_due_at, last_run_at и last_run_id.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

// LoadState заполняет NextDueAt, LastRunAt, LastRunID из БД.
// ErrNotFound, если состояние ещё не сохранялось.
func (r *ScheduleRepo) LoadState(ctx context.Context, schedule *domain.Schedule) error {
	query := `
		SELECT next_due_at, last_run_at, last_run_id
		FROM schedule_state
		WHERE name = $1
	`
	err := r.pool.QueryRow(ctx, query, schedule.Name).Scan(
		&schedule.NextDueAt,
		&schedule.LastRunAt,
		&schedule.LastRunID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load schedule state %s: %w", schedule.Name, err)
	}
	return nil
}

// SaveState сохраняет состояние расписания.
func (r *ScheduleRepo) SaveState(ctx context.Context, schedule *domain.Schedule) error {
	if schedule.Name == "" {
		return ErrInvalidName
	}

	query := `
		INSERT INTO schedule_state (name, next_due_at, last_run_at, last_run_id, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (name) DO UPDATE
		SET next_due_at = EXCLUDED.next_due_at,
		    last_run_at = EXCLUDED.last_run_at,
		    last_run_id = EXCLUDED.last_run_id,
		    updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		schedule.Name,
		schedule.NextDueAt,
		schedule.LastRunAt,
		schedule.LastRunID,
	)
	if err != nil {
		return fmt.Errorf("save schedule state %s: %w", schedule.Name, err)
	}
	return nil
}
