package steps

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Recipes/internal/engine"
	"github.com/shaiso/Recipes/internal/state"
)

// Step — интерфейс модуля (scriptlet), который выполняет шаг рецепта.
//
// Модуль читает аргументы и Context, пишет результаты в Context и может
// вернуть необязательный результат. Ошибка означает падение шага.
type Step interface {
	// Module возвращает имя модуля, под которым он регистрируется.
	Module() string

	// Execute выполняет шаг.
	// Шаг должен проверять ctx.Done() для graceful shutdown.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// StepFunc — функция, реализующая шаг.
type StepFunc func(ctx context.Context, req *Request) (*Response, error)

type funcStep struct {
	module string
	fn     StepFunc
}

func (s *funcStep) Module() string { return s.module }

func (s *funcStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	return s.fn(ctx, req)
}

// Func оборачивает функцию в Step.
func Func(module string, fn StepFunc) Step {
	return &funcStep{module: module, fn: fn}
}

// Request — входные данные для выполнения шага.
type Request struct {
	// RunID — идентификатор запуска.
	RunID uuid.UUID

	// Step — имя шага в рецепте.
	Step string

	// Module — имя модуля.
	Module string

	// Args — аргументы шага (уже отрендеренные через engine.RenderArgs).
	Args map[string]any

	// State — Context запуска. Изменения записываются от имени шага.
	State *state.Context

	// Template — данные для дополнительного рендеринга внутри шага.
	Template *engine.TemplateData

	// Logger — логгер с полями запуска.
	Logger *slog.Logger
}

// NewRequest создаёт новый Request.
func NewRequest(step, module string, args map[string]any, st *state.Context) *Request {
	if args == nil {
		args = make(map[string]any)
	}
	return &Request{
		Step:   step,
		Module: module,
		Args:   args,
		State:  st,
	}
}

// Log возвращает логгер запроса или slog.Default().
func (r *Request) Log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Response — результат выполнения шага.
type Response struct {
	// Result — необязательный результат.
	// Доступен в следующих шагах через {{ .Steps.name.Result }}
	Result any
}

// NewResponse создаёт новый Response с результатом.
func NewResponse(result any) *Response {
	return &Response{Result: result}
}

// EmptyResponse возвращает пустой Response.
func EmptyResponse() *Response {
	return &Response{}
}

// GetArgString извлекает строковое значение из аргументов.
func GetArgString(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetArgStringDefault извлекает строку или возвращает defaultVal.
func GetArgStringDefault(args map[string]any, key, defaultVal string) string {
	if s := GetArgString(args, key); s != "" {
		return s
	}
	return defaultVal
}

// GetArgInt извлекает целое значение из аргументов.
// Строки после рендеринга шаблонов ("42") тоже принимаются.
func GetArgInt(args map[string]any, key string) int {
	n, ok := parseNumber(args[key])
	if !ok {
		return 0
	}
	if n.isFloat {
		return int(n.f)
	}
	return int(n.i)
}

// GetArgBool извлекает булево значение из аргументов.
func GetArgBool(args map[string]any, key string, defaultVal bool) bool {
	if v, ok := args[key]; ok {
		switch b := v.(type) {
		case bool:
			return b
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return parsed
			}
		}
	}
	return defaultVal
}

// GetArgMap извлекает map из аргументов.
func GetArgMap(args map[string]any, key string) map[string]any {
	if v, ok := args[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// GetArgMapString извлекает map[string]string из аргументов.
func GetArgMapString(args map[string]any, key string) map[string]string {
	if v, ok := args[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string)
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}

// number — число из Context или аргументов: целое или с плавающей точкой.
type number struct {
	i       int64
	f       float64
	isFloat bool
}

// parseNumber приводит значение к number.
func parseNumber(v any) (number, bool) {
	switch n := v.(type) {
	case int:
		return number{i: int64(n)}, true
	case int8:
		return number{i: int64(n)}, true
	case int16:
		return number{i: int64(n)}, true
	case int32:
		return number{i: int64(n)}, true
	case int64:
		return number{i: n}, true
	case uint:
		return fromUint(uint64(n)), true
	case uint8:
		return number{i: int64(n)}, true
	case uint16:
		return number{i: int64(n)}, true
	case uint32:
		return number{i: int64(n)}, true
	case uint64:
		return fromUint(n), true
	case float32:
		return number{f: float64(n), isFloat: true}, true
	case float64:
		return number{f: n, isFloat: true}, true
	case json.Number:
		return parseNumber(string(n))
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return number{i: i}, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return number{f: f, isFloat: true}, true
		}
	}
	return number{}, false
}

func fromUint(u uint64) number {
	if u > math.MaxInt64 {
		return number{f: float64(u), isFloat: true}
	}
	return number{i: int64(u)}
}

// add и mul переходят на float64, если целый результат не помещается в int64.
func (n number) add(o number) number {
	if n.isFloat || o.isFloat {
		return number{f: n.float() + o.float(), isFloat: true}
	}
	sum := n.i + o.i
	if (n.i > 0 && o.i > 0 && sum < 0) || (n.i < 0 && o.i < 0 && sum >= 0) {
		return number{f: n.float() + o.float(), isFloat: true}
	}
	return number{i: sum}
}

func (n number) mul(k int64) number {
	if n.isFloat {
		return number{f: n.f * float64(k), isFloat: true}
	}
	p := n.i * k
	if k != 0 && (p/k != n.i || (k == -1 && n.i == math.MinInt64)) {
		return number{f: n.float() * float64(k), isFloat: true}
	}
	return number{i: p}
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

// value возвращает число как int или float64.
func (n number) value() any {
	if n.isFloat {
		return n.f
	}
	return int(n.i)
}

// RawArgsStep — модуль, часть аргументов которого движок не рендерит заранее.
// Такие аргументы модуль рендерит сам в момент выполнения.
type RawArgsStep interface {
	RawArgs() []string
}
