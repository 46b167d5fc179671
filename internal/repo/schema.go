package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — таблицы, которые нужны сервисам.
// Идемпотентна: можно вызывать при каждом старте.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id           UUID PRIMARY KEY,
		recipe       TEXT NOT NULL,
		status       TEXT NOT NULL,
		context_name TEXT,
		report       JSONB,
		error        TEXT,
		started_at   TIMESTAMPTZ,
		finished_at  TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS runs_recipe_created_idx ON runs (recipe, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS contexts (
		name       TEXT PRIMARY KEY,
		dump       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS schedule_state (
		name        TEXT PRIMARY KEY,
		next_due_at TIMESTAMPTZ,
		last_run_at TIMESTAMPTZ,
		last_run_id UUID,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema создаёт таблицы, если их нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
