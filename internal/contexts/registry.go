// Package contexts держит именованные общие Context в памяти процесса
// и сохраняет их во внешнее хранилище.
//
// Несколько runs с одинаковым context_name работают с одним экземпляром
// state.Context: изменения одного run видны следующим.
package contexts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/shaiso/Recipes/internal/repo"
	"github.com/shaiso/Recipes/internal/state"
)

// ErrInvalidName — пустое имя контекста.
var ErrInvalidName = errors.New("context name is required")

// Store — хранилище выгрузок контекстов (repo.ContextRepo или MemoryStore).
// Load возвращает repo.ErrNotFound, если контекста нет.
type Store interface {
	Save(ctx context.Context, name string, dump state.Dump) error
	Load(ctx context.Context, name string) (state.Dump, error)
}

// Registry — реестр именованных контекстов.
type Registry struct {
	store  Store
	logger *slog.Logger

	mu    sync.Mutex
	items map[string]*state.Context
}

// NewRegistry создаёт реестр. store может быть nil — тогда контексты
// живут только в памяти.
func NewRegistry(store Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  store,
		logger: logger,
		items:  make(map[string]*state.Context),
	}
}

// Acquire возвращает контекст по имени. При первом обращении он
// загружается из Store; если его там нет, создаётся пустой.
func (r *Registry) Acquire(ctx context.Context, name string) (*state.Context, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.items[name]; ok {
		return st, nil
	}

	st, err := r.load(ctx, name)
	if err != nil {
		return nil, err
	}
	r.items[name] = st
	return st, nil
}

func (r *Registry) load(ctx context.Context, name string) (*state.Context, error) {
	if r.store == nil {
		return state.New(), nil
	}

	dump, err := r.store.Load(ctx, name)
	if errors.Is(err, repo.ErrNotFound) {
		r.logger.Info("creating new shared context", "context", name)
		return state.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load context %s: %w", name, err)
	}

	st, err := state.FromDump(dump)
	if err != nil {
		return nil, fmt.Errorf("restore context %s: %w", name, err)
	}
	r.logger.Debug("shared context loaded", "context", name, "keys", st.Len())
	return st, nil
}

// Get возвращает существующий контекст: из памяти или из Store.
// В отличие от Acquire, не создаёт пустой контекст и возвращает
// repo.ErrNotFound для неизвестного имени.
func (r *Registry) Get(ctx context.Context, name string) (*state.Context, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.items[name]; ok {
		return st, nil
	}
	if r.store == nil {
		return nil, fmt.Errorf("context %s: %w", name, repo.ErrNotFound)
	}

	dump, err := r.store.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load context %s: %w", name, err)
	}
	st, err := state.FromDump(dump)
	if err != nil {
		return nil, fmt.Errorf("restore context %s: %w", name, err)
	}
	r.items[name] = st
	return st, nil
}

// Lookup возвращает контекст, если он уже в памяти.
func (r *Registry) Lookup(name string) (*state.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.items[name]
	return st, ok
}

// Persist сохраняет контекст в Store. Без Store ничего не делает.
func (r *Registry) Persist(ctx context.Context, name string) error {
	if r.store == nil {
		return nil
	}

	st, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("persist context %s: %w", name, repo.ErrNotFound)
	}
	if err := r.store.Save(ctx, name, st.Export()); err != nil {
		return fmt.Errorf("persist context %s: %w", name, err)
	}
	return nil
}

// Names возвращает имена контекстов в памяти, по алфавиту.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
