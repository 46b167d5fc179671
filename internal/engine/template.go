package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// TemplateData — данные для рендеринга шаблонов в args и when.
//
// Используется в Go templates для доступа к данным:
//   - {{ .Context.key }}               — значение из Context на момент шага
//   - {{ .Steps.step_name.Result }}    — результат предыдущего шага
//   - {{ .Steps.step_name.Status }}    — статус предыдущего шага
//   - {{ .Recipe }}, {{ .RunID }}
type TemplateData struct {
	// Context — снимок Context перед выполнением шага.
	Context map[string]any `json:"context"`

	// Steps — результаты уже выполненных шагов.
	Steps map[string]*StepData `json:"steps"`

	// Recipe — имя рецепта.
	Recipe string `json:"recipe"`

	// RunID — идентификатор запуска.
	RunID string `json:"run_id"`
}

// StepData — результат выполнения шага для использования в шаблонах.
type StepData struct {
	// Result — результат, который вернул модуль.
	Result any `json:"result"`

	// Status — статус выполнения: "SUCCEEDED", "FAILED", "SKIPPED".
	Status string `json:"status"`
}

// NewTemplateData создаёт данные для шаблонов со снимком контекста.
func NewTemplateData(values map[string]any) *TemplateData {
	if values == nil {
		values = make(map[string]any)
	}
	return &TemplateData{
		Context: values,
		Steps:   make(map[string]*StepData),
	}
}

// AddStepResult добавляет результат выполнения шага.
func (d *TemplateData) AddStepResult(step string, result any, status string) {
	d.Steps[step] = &StepData{
		Result: result,
		Status: status,
	}
}

// HasTemplate возвращает true, если строка содержит шаблонные выражения.
func HasTemplate(s string) bool {
	return strings.Contains(s, "{{")
}

// NeedsRender возвращает true, если в значении есть строки с шаблонами.
func NeedsRender(value any) bool {
	switch v := value.(type) {
	case string:
		return HasTemplate(v)
	case map[string]any:
		for _, val := range v {
			if NeedsRender(val) {
				return true
			}
		}
	case []any:
		for _, val := range v {
			if NeedsRender(val) {
				return true
			}
		}
	}
	return false
}

// isBlank — nil или пустая строка.
func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(b)
}

// templateFuncs доступны в args, when и mappings шага transform.
var templateFuncs = template.FuncMap{
	"json": toJSON,
	"fromJSON": func(s string) any {
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil
		}
		return out
	},
	"default": func(def, val any) any {
		if isBlank(val) {
			return def
		}
		return val
	},
	"coalesce": func(values ...any) any {
		for _, v := range values {
			if !isBlank(v) {
				return v
			}
		}
		return nil
	},
	"join":      func(sep string, items []string) string { return strings.Join(items, sep) },
	"split":     func(sep, s string) []string { return strings.Split(s, sep) },
	"contains":  strings.Contains,
	"hasPrefix": strings.HasPrefix,
	"hasSuffix": strings.HasSuffix,
	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"trim":      strings.TrimSpace,
	"replace":   strings.ReplaceAll,
}

// Render рендерит строку как Go template над data. Строка без "{{"
// возвращается без разбора.
//
//	{{ .Context.threshold }}
//	{{ .Steps.fetch.Result.body }}
//	{{ if eq .Steps.check.Status "SUCCEEDED" }}...{{ end }}
func Render(tmpl string, data *TemplateData) (string, error) {
	if !HasTemplate(tmpl) {
		return tmpl, nil
	}

	t, err := template.New("step").Funcs(templateFuncs).Option("missingkey=default").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	return buf.String(), nil
}

// RenderValue рендерит строки внутри value, обходя вложенные map и slice.
// Числа, bool и прочие скаляры возвращаются как есть.
func RenderValue(value any, data *TemplateData) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return Render(v, data)
	case map[string]any:
		return renderMap(v, func(x any) (any, error) { return RenderValue(x, data) })
	case map[string]string:
		return renderMap(v, func(x string) (string, error) { return Render(x, data) })
	case []any:
		return renderSlice(v, func(x any) (any, error) { return RenderValue(x, data) })
	case []string:
		return renderSlice(v, func(x string) (string, error) { return Render(x, data) })
	default:
		return value, nil
	}
}

func renderMap[T any](in map[string]T, render func(T) (T, error)) (map[string]T, error) {
	out := make(map[string]T, len(in))
	for k, v := range in {
		r, err := render(v)
		if err != nil {
			return nil, err
		}
		out[k] = r
	}
	return out, nil
}

func renderSlice[T any](in []T, render func(T) (T, error)) ([]T, error) {
	out := make([]T, len(in))
	for i, v := range in {
		r, err := render(v)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// RenderArgs рендерит аргументы шага. nil даёт пустую map.
func RenderArgs(args map[string]any, data *TemplateData) (map[string]any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	return renderMap(args, func(x any) (any, error) { return RenderValue(x, data) })
}

// RenderCondition вычисляет поле when шага. Пустое условие истинно.
//
// Условие записывается выражением ("gt .Context.value 0") или готовым
// шаблоном ("{{ gt .Context.value 0 }}"); во втором случае результат
// сравнивается со строкой "true".
func RenderCondition(condition string, data *TemplateData) (bool, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true, nil
	}

	tmpl := condition
	if !HasTemplate(condition) {
		tmpl = "{{if " + condition + "}}true{{else}}false{{end}}"
	}

	out, err := Render(tmpl, data)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "true", nil
}
