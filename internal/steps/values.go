package steps

import (
	"context"
	"fmt"
	"sort"
)

const (
	// ModuleSetValue — записывает значения в Context.
	ModuleSetValue = "set_value"

	// ModuleCopyValue — копирует значение между ключами Context.
	ModuleCopyValue = "copy_value"

	// ModuleClearContext — очищает Context.
	ModuleClearContext = "clear_context"

	argValues = "values"
	argFrom   = "from"
	argTo     = "to"
)

// SetValueStep записывает значения в Context.
//
// Аргументы (один из вариантов):
//
//	{"key": "status", "value": "ready"}
//	{"values": {"a": 1, "b": [1, 2]}}
//
// Ключи из values записываются по одному в порядке сортировки.
type SetValueStep struct{}

// NewSetValueStep создаёт новый SetValueStep.
func NewSetValueStep() *SetValueStep {
	return &SetValueStep{}
}

// Module возвращает имя модуля.
func (s *SetValueStep) Module() string {
	return ModuleSetValue
}

// Execute записывает значения.
func (s *SetValueStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if values := GetArgMap(req.Args, argValues); values != nil {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if err := req.State.Set(k, values[k]); err != nil {
				return nil, err
			}
		}
		return NewResponse(keys), nil
	}

	key := GetArgString(req.Args, argKey)
	if key == "" {
		return nil, fmt.Errorf("%w: %s: key or values is required", ErrInvalidArgs, ModuleSetValue)
	}
	value, ok := req.Args[argValue]
	if !ok {
		return nil, fmt.Errorf("%w: %s: value is required", ErrInvalidArgs, ModuleSetValue)
	}

	if err := req.State.Set(key, value); err != nil {
		return nil, err
	}
	return EmptyResponse(), nil
}

// CopyValueStep копирует значение из одного ключа в другой.
//
// Аргументы:
//
//	{"from": "value", "to": "backup"}
type CopyValueStep struct{}

// NewCopyValueStep создаёт новый CopyValueStep.
func NewCopyValueStep() *CopyValueStep {
	return &CopyValueStep{}
}

// Module возвращает имя модуля.
func (s *CopyValueStep) Module() string {
	return ModuleCopyValue
}

// Execute копирует значение.
func (s *CopyValueStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	from := GetArgString(req.Args, argFrom)
	to := GetArgString(req.Args, argTo)
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: %s: from and to are required", ErrInvalidArgs, ModuleCopyValue)
	}

	value, ok := req.State.Lookup(from)
	if !ok {
		return nil, fmt.Errorf("%w: %s: context key %q not found", ErrInvalidArgs, ModuleCopyValue, from)
	}

	if err := req.State.Set(to, value); err != nil {
		return nil, err
	}
	return EmptyResponse(), nil
}

// ClearContextStep очищает Context. Журнал изменений сохраняется.
type ClearContextStep struct{}

// NewClearContextStep создаёт новый ClearContextStep.
func NewClearContextStep() *ClearContextStep {
	return &ClearContextStep{}
}

// Module возвращает имя модуля.
func (s *ClearContextStep) Module() string {
	return ModuleClearContext
}

// Execute очищает Context.
func (s *ClearContextStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	req.State.Clear()
	return EmptyResponse(), nil
}
