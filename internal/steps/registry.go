package steps

import (
	"sort"
	"sync"
)

// Resolver — источник модулей для движка.
type Resolver interface {
	// Resolve возвращает модуль по имени или *ResolutionError.
	Resolve(module string) (Step, error)
}

// Registry — реестр модулей.
//
// Позволяет регистрировать и получать реализации Step по имени модуля.
// Потокобезопасен.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными модулями.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	// Регистрируем все стандартные модули
	r.Register(NewInitNumberStep())
	r.Register(NewDoubleNumberStep())
	r.Register(NewAddNumberStep())
	r.Register(NewSetValueStep())
	r.Register(NewCopyValueStep())
	r.Register(NewClearContextStep())
	r.Register(NewFailStep())
	r.Register(NewDelayStep())
	r.Register(NewHTTPStep())
	r.Register(NewTransformStep())

	return r
}

// Register регистрирует модуль в реестре.
// Если модуль с таким именем уже существует, он будет перезаписан.
func (r *Registry) Register(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[step.Module()] = step
}

// RegisterFunc регистрирует функцию как модуль.
func (r *Registry) RegisterFunc(module string, fn StepFunc) {
	r.Register(Func(module, fn))
}

// Resolve возвращает модуль по имени.
// Возвращает *ResolutionError, если модуль не найден.
func (r *Registry) Resolve(module string) (Step, error) {
	step, ok := r.Lookup(module)
	if !ok {
		return nil, &ResolutionError{Module: module}
	}
	return step, nil
}

// Lookup возвращает модуль и признак наличия.
func (r *Registry) Lookup(module string) (Step, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	step, exists := r.steps[module]
	return step, exists
}

// Has проверяет, зарегистрирован ли модуль.
func (r *Registry) Has(module string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.steps[module]
	return exists
}

// Modules возвращает отсортированный список зарегистрированных модулей.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modules := make([]string, 0, len(r.steps))
	for m := range r.steps {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	return modules
}

// Count возвращает количество зарегистрированных модулей.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}

// Unregister удаляет модуль из реестра.
func (r *Registry) Unregister(module string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.steps, module)
}
