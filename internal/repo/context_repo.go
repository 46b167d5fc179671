package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Recipes/internal/state"
)

// ContextRepo хранит именованные контексты (значения и журнал изменений).
type ContextRepo struct {
	pool *pgxpool.Pool
}

// NewContextRepo создаёт новый ContextRepo.
func NewContextRepo(pool *pgxpool.Pool) *ContextRepo {
	return &ContextRepo{pool: pool}
}

// Save сохраняет выгрузку контекста под именем name.
func (r *ContextRepo) Save(ctx context.Context, name string, dump state.Dump) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}

	data, err := json.Marshal(dump)
	if err != nil {
		return fmt.Errorf("marshal context %s: %w", name, err)
	}

	query := `
		INSERT INTO contexts (name, dump, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE
		SET dump = EXCLUDED.dump, updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, name, data); err != nil {
		return fmt.Errorf("save context %s: %w", name, err)
	}
	return nil
}

// Load возвращает выгрузку контекста. ErrNotFound, если его нет.
func (r *ContextRepo) Load(ctx context.Context, name string) (state.Dump, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT dump FROM contexts WHERE name = $1`, name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return state.Dump{}, ErrNotFound
	}
	if err != nil {
		return state.Dump{}, fmt.Errorf("load context %s: %w", name, err)
	}

	var dump state.Dump
	if err := json.Unmarshal(data, &dump); err != nil {
		return state.Dump{}, fmt.Errorf("unmarshal context %s: %w", name, err)
	}
	return dump, nil
}
