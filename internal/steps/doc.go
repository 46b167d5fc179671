// Package steps содержит модули (scriptlets), которые выполняют шаги рецепта.
//
// # Обзор
//
// Модуль — это исполнитель шага. Каждый модуль:
//   - Получает аргументы (уже отрендеренные через engine.RenderArgs)
//   - Читает и пишет Context (state.Context) от имени шага
//   - Возвращает необязательный Result для следующих шагов
//
// # Интерфейс Step
//
// Все модули реализуют интерфейс Step:
//
//	type Step interface {
//	    Module() string
//	    Execute(ctx context.Context, req *Request) (*Response, error)
//	}
//
// Request содержит:
//   - Step, Module — имя шага и модуля
//   - Args — аргументы (map[string]any)
//   - State — Context запуска с автором "step:<name>"
//   - Template — данные для дополнительного рендеринга
//   - Logger — логгер с полями запуска
//
// Response содержит:
//   - Result — результат выполнения (любое JSON-сериализуемое значение)
//
// Простые модули можно регистрировать функцией:
//
//	registry.RegisterFunc("greet", func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
//	    return steps.EmptyResponse(), req.State.Set("greeting", "hello")
//	})
//
// # Registry
//
// Registry хранит модули по имени. Resolve никогда не паникует:
// для неизвестного модуля возвращается *ResolutionError.
//
//	registry := steps.DefaultRegistry()
//	step, err := registry.Resolve("double_number")
//
// DefaultRegistry регистрирует стандартные модули:
//
//	init_number    — записать число:             {"value": 5, "key": "value"}
//	double_number  — удвоить число:              {"key": "value"}
//	add_number     — прибавить:                  {"amount": 3, "key": "value"}
//	set_value      — записать значения:          {"key": "k", "value": ...} или {"values": {...}}
//	copy_value     — скопировать ключ:           {"from": "a", "to": "b"}
//	clear_context  — очистить Context
//	fail           — упасть с ошибкой:           {"message": "...", "set_before": {...}}
//	delay          — подождать:                  {"duration": "500ms"}
//	http           — HTTP запрос:                {"url": "...", "query": {...}, "save_as": "resp"}
//	transform      — шаблоны в Context:          {"mappings": {"k": "{{ ... }}"}}
//
// # Обработка ошибок
//
// Модули возвращают типизированные ошибки:
//
//	var (
//	    ErrInvalidArgs     // неверные аргументы
//	    ErrStepCancelled   // context cancelled
//	    ErrStepFailed      // модуль fail
//	)
//	*HTTPError             // HTTP статус >= 400
//	*state.SerializationError // несериализуемое значение
//
// Движок оборачивает ошибку модуля в *StepExecutionError.
//
// # Файлы пакета
//
//   - step.go      — интерфейс Step, Request, Response, хелперы аргументов
//   - errors.go    — ResolutionError, StepExecutionError и sentinel-ошибки
//   - registry.go  — Registry и Resolver
//   - numbers.go   — init_number, double_number, add_number
//   - values.go    — set_value, copy_value, clear_context
//   - fail.go      — fail
//   - http.go      — HTTPStep
//   - delay.go     — DelayStep
//   - transform.go — TransformStep
package steps
