package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/shaiso/Recipes/internal/engine"
)

// ModuleTransform вычисляет новые значения Context из шаблонов.
const ModuleTransform = "transform"

// TransformStep рендерит каждый шаблон из mappings над свежим снимком
// Context и результатами прошлых шагов. Результаты пишутся в Context
// под своими ключами, а при заданном target одной map под этим ключом.
//
// Шаблоны рендерятся здесь, а не движком заранее, чтобы видеть Context
// на момент выполнения шага.
//
//	module: transform
//	args:
//	  mappings:
//	    total: "{{ len .Context.items }}"          // 3 (int64)
//	    first: "{{ index .Context.items 0 | json }}" // разбирается как JSON
//	    label: "{{ upper .Context.name }}"          // строка
//	  target: summary                              // необязательно
type TransformStep struct{}

// NewTransformStep создаёт TransformStep.
func NewTransformStep() *TransformStep { return &TransformStep{} }

// Module возвращает имя модуля.
func (s *TransformStep) Module() string { return ModuleTransform }

// RawArgs — mappings не рендерятся движком до вызова шага.
func (s *TransformStep) RawArgs() []string { return []string{"mappings"} }

// Execute рендерит mappings в порядке ключей.
func (s *TransformStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, err)
	}

	mappings := GetArgMapString(req.Args, "mappings")
	if len(mappings) == 0 {
		return EmptyResponse(), nil
	}

	data := engine.NewTemplateData(req.State.Snapshot())
	if t := req.Template; t != nil {
		data.Steps, data.Recipe, data.RunID = t.Steps, t.Recipe, t.RunID
	}

	outputs := make(map[string]any, len(mappings))
	for _, key := range sortedKeys(mappings) {
		rendered, err := engine.Render(mappings[key], data)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", key, err)
		}
		outputs[key] = decodeRendered(rendered)
	}

	if target := GetArgString(req.Args, "target"); target != "" {
		if err := req.State.Set(target, outputs); err != nil {
			return nil, err
		}
		return NewResponse(outputs), nil
	}

	for _, key := range sortedKeys(outputs) {
		if err := req.State.Set(key, outputs[key]); err != nil {
			return nil, err
		}
	}
	return NewResponse(outputs), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// decodeRendered возвращает типизированное значение для результата
// шаблона: JSON объект или массив, целое (int64), дробное, bool. Всё
// остальное остаётся строкой.
func decodeRendered(s string) any {
	t := strings.TrimSpace(s)
	switch {
	case t == "true":
		return true
	case t == "false":
		return false
	case strings.HasPrefix(t, "{") || strings.HasPrefix(t, "["):
		var v any
		if json.Unmarshal([]byte(t), &v) == nil {
			return v
		}
	case json.Valid([]byte(t)):
		if i, err := strconv.ParseInt(t, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return s
}
