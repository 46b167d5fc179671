package contexts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shaiso/Recipes/internal/repo"
	"github.com/shaiso/Recipes/internal/state"
)

// MemoryStore — Store в памяти процесса.
// Выгрузки хранятся в JSON, как в repo.ContextRepo, поэтому загруженный
// контекст проходит тот же путь восстановления.
type MemoryStore struct {
	mu    sync.RWMutex
	dumps map[string][]byte
}

// NewMemoryStore создаёт пустой MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{dumps: make(map[string][]byte)}
}

// Save сохраняет выгрузку.
func (m *MemoryStore) Save(_ context.Context, name string, dump state.Dump) error {
	data, err := json.Marshal(dump)
	if err != nil {
		return fmt.Errorf("marshal context %s: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dumps[name] = data
	return nil
}

// Load возвращает выгрузку или repo.ErrNotFound.
func (m *MemoryStore) Load(_ context.Context, name string) (state.Dump, error) {
	m.mu.RLock()
	data, ok := m.dumps[name]
	m.mu.RUnlock()

	if !ok {
		return state.Dump{}, repo.ErrNotFound
	}

	var dump state.Dump
	if err := json.Unmarshal(data, &dump); err != nil {
		return state.Dump{}, fmt.Errorf("unmarshal context %s: %w", name, err)
	}
	return dump, nil
}
