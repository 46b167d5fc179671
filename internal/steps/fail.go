package steps

import (
	"context"
	"fmt"
	"sort"
)

const (
	// ModuleFail — всегда завершается ошибкой.
	ModuleFail = "fail"

	argMessage   = "message"
	argSetBefore = "set_before"
)

// FailStep всегда завершается ошибкой.
//
// Полезен для проверки поведения рецепта при падениях.
// Перед ошибкой может записать значения из set_before: такие записи
// остаются в Context, откат выполняется только компенсацией.
//
// Аргументы:
//
//	{
//	    "message": "boom",
//	    "set_before": {"partial": true}
//	}
type FailStep struct{}

// NewFailStep создаёт новый FailStep.
func NewFailStep() *FailStep {
	return &FailStep{}
}

// Module возвращает имя модуля.
func (s *FailStep) Module() string {
	return ModuleFail
}

// Execute записывает set_before и возвращает ошибку.
func (s *FailStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if values := GetArgMap(req.Args, argSetBefore); values != nil {
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
	}

	msg := GetArgStringDefault(req.Args, argMessage, "requested by recipe")
	return nil, fmt.Errorf("%w: %s", ErrStepFailed, msg)
}
