package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Recipes/internal/domain"
)

// Лимиты выборки runs.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// RunRepo — репозиторий для работы с runs.
// Отчёт хранится целиком в JSONB колонке report.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Save сохраняет run. Повторное сохранение с тем же ID обновляет запись.
func (r *RunRepo) Save(ctx context.Context, run *domain.Run) error {
	reportJSON, err := encodeReport(run.Report)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO runs (id, recipe, status, context_name, report, error, started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    report = EXCLUDED.report,
		    error = EXCLUDED.error,
		    started_at = EXCLUDED.started_at,
		    finished_at = EXCLUDED.finished_at
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.Recipe,
		run.Status,
		nullString(run.ContextName),
		reportJSON,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT id, recipe, status, context_name, report, error, started_at, finished_at, created_at
		FROM runs
		WHERE id = $1
	`
	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// List возвращает список runs с фильтрацией, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	filter = filter.normalize()

	query := `
		SELECT id, recipe, status, context_name, report, error, started_at, finished_at, created_at
		FROM runs
		WHERE ($1::text IS NULL OR recipe = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.Recipe),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// --- Helpers ---

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	Recipe string
	Status domain.RunStatus
	Limit  int
	Offset int
}

// normalize подставляет лимиты по умолчанию.
func (f RunFilter) normalize() RunFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// scanRun сканирует одну строку в Run. pgx.Row и pgx.Rows оба подходят.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var reportJSON []byte
	var contextName, runError *string

	err := row.Scan(
		&run.ID,
		&run.Recipe,
		&run.Status,
		&contextName,
		&reportJSON,
		&runError,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if run.Report, err = decodeReport(reportJSON); err != nil {
		return nil, err
	}
	if contextName != nil {
		run.ContextName = *contextName
	}
	if runError != nil {
		run.Error = *runError
	}

	return &run, nil
}

// encodeReport сериализует отчёт. nil отчёт хранится как NULL.
func encodeReport(report *domain.ExecutionReport) ([]byte, error) {
	if report == nil {
		return nil, nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

// decodeReport восстанавливает отчёт из JSONB.
func decodeReport(data []byte) (*domain.ExecutionReport, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var report domain.ExecutionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
