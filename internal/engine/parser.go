package engine

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/state"
)

// Допустимые поля верхнего уровня.
var recipeFields = map[string]bool{
	"name":        true,
	"description": true,
	"version":     true,
	"steps":       true,
}

// Допустимые поля шага.
var stepFields = map[string]bool{
	"name":            true,
	"module":          true,
	"scriptlet":       true,
	"description":     true,
	"args":            true,
	"critical":        true,
	"on_failure":      true,
	"when":            true,
	"compensate":      true,
	"compensate_args": true,
}

// Load разбирает текст рецепта (YAML или JSON) в mapping.
//
// Возвращает *FormatError, если текст пустой, не разбирается или верхний
// уровень не является mapping. Обёртка вида `recipe: {...}` снимается.
func Load(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, newFormatError(ErrEmptyDocument, "document is empty")
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, newFormatError(fmt.Errorf("%w: %v", ErrMalformed, err), "cannot parse document: %v", err)
	}

	parsed, ok := doc.(map[string]any)
	if !ok {
		return nil, newFormatError(ErrNotMapping, "top level must be a mapping, got %s", typeName(doc))
	}

	if len(parsed) == 1 {
		if inner, ok := parsed["recipe"].(map[string]any); ok {
			parsed = inner
		}
	}

	return parsed, nil
}

// Validate проверяет разобранный рецепт.
//
// Проверки выполняются по порядку и останавливаются на первой ошибке:
// - непустое имя рецепта
// - steps — непустой список
// - у каждого шага непустые name и module
// - имена шагов уникальны
// - args — mapping из JSON-сериализуемых значений
// - корректные critical/on_failure, when, compensate
//
// Возвращает *ValidationError.
func Validate(parsed map[string]any) error {
	if parsed == nil {
		return NewValidationError("", "name", "recipe name is required", ErrEmptyName)
	}

	name, ok := parsed["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return NewValidationError("", "name", "recipe name is required", ErrEmptyName)
	}

	if err := checkOptionalString(parsed, "description", ""); err != nil {
		return err
	}

	rawSteps, ok := parsed["steps"]
	if !ok || rawSteps == nil {
		return NewValidationError("", "steps", "recipe has no steps", ErrEmptySteps)
	}

	list, ok := rawSteps.([]any)
	if !ok {
		return NewValidationError("", "steps", fmt.Sprintf("steps must be a list, got %s", typeName(rawSteps)), ErrStepsNotList)
	}
	if len(list) == 0 {
		return NewValidationError("", "steps", "recipe has no steps", ErrEmptySteps)
	}

	for key := range parsed {
		if !recipeFields[key] {
			return NewValidationError("", key, fmt.Sprintf("unknown field %q", key), ErrInvalidField)
		}
	}

	// Собираем имена шагов для проверки уникальности
	seen := make(map[string]bool, len(list))

	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return NewValidationError(fmt.Sprintf("#%d", i+1), "", fmt.Sprintf("step entry must be a mapping, got %s", typeName(entry)), ErrStepNotMapping)
		}
		if err := validateStep(i, m, seen); err != nil {
			return err
		}
	}

	return nil
}

// validateStep валидирует один элемент steps.
// seen — уже встреченные имена шагов (для проверки уникальности).
func validateStep(i int, m map[string]any, seen map[string]bool) error {
	ref := fmt.Sprintf("#%d", i+1)

	// Проверка имени
	name, ok := m["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return NewValidationError(ref, "name", "step name is required", ErrEmptyStepName)
	}
	if seen[name] {
		return NewValidationError(name, "name", fmt.Sprintf("duplicate step name: %s", name), ErrDuplicateStepName)
	}
	seen[name] = true

	// Проверка модуля: module и scriptlet — синонимы, допустим только один
	_, hasModule := m["module"]
	if _, hasScriptlet := m["scriptlet"]; hasModule && hasScriptlet {
		return NewValidationError(name, "scriptlet", "module and scriptlet are mutually exclusive", ErrInvalidField)
	}
	module, err := stepModule(m)
	if err != nil {
		return NewValidationError(name, "module", err.Error(), ErrEmptyModule)
	}
	if module == "" {
		return NewValidationError(name, "module", "step module is required", ErrEmptyModule)
	}

	for key := range m {
		if !stepFields[key] {
			return NewValidationError(name, key, fmt.Sprintf("unknown field %q", key), ErrInvalidField)
		}
	}

	if err := checkArgs(name, "args", m["args"]); err != nil {
		return err
	}

	if _, err := stepCriticality(name, m); err != nil {
		return err
	}

	for _, field := range []string{"description", "when", "compensate"} {
		if err := checkOptionalString(m, field, name); err != nil {
			return err
		}
	}

	if err := checkArgs(name, "compensate_args", m["compensate_args"]); err != nil {
		return err
	}
	if _, ok := m["compensate_args"]; ok && m["compensate"] == nil {
		return NewValidationError(name, "compensate_args", "compensate_args requires compensate", ErrInvalidField)
	}

	return nil
}

// ParseStep разбирает один элемент steps в StepDef.
// Уникальность имени здесь не проверяется: это делает ParseRecipe.
func ParseStep(entry map[string]any) (domain.StepDef, error) {
	if err := validateStep(0, entry, make(map[string]bool)); err != nil {
		return domain.StepDef{}, err
	}

	name := entry["name"].(string)
	module, _ := stepModule(entry)
	criticality, _ := stepCriticality(name, entry)

	args, err := copyArgs(entry["args"])
	if err != nil {
		return domain.StepDef{}, NewValidationError(name, "args", err.Error(), ErrArgsNotSerializable)
	}

	step := domain.StepDef{
		Name:        name,
		Module:      module,
		Args:        args,
		Criticality: criticality,
	}
	step.Description, _ = entry["description"].(string)
	step.When, _ = entry["when"].(string)
	step.Compensate, _ = entry["compensate"].(string)

	if step.Compensate != "" {
		cargs, err := copyArgs(entry["compensate_args"])
		if err != nil {
			return domain.StepDef{}, NewValidationError(name, "compensate_args", err.Error(), ErrArgsNotSerializable)
		}
		step.CompensateArgs = cargs
	}

	return step, nil
}

// ParseRecipe валидирует разобранный рецепт и строит Recipe.
// Валидация всегда выполняется целиком до построения шагов.
func ParseRecipe(parsed map[string]any) (*domain.Recipe, error) {
	if err := Validate(parsed); err != nil {
		return nil, err
	}

	list := parsed["steps"].([]any)
	recipe := &domain.Recipe{
		Name:  parsed["name"].(string),
		Steps: make([]domain.StepDef, 0, len(list)),
	}
	recipe.Description, _ = parsed["description"].(string)

	for _, entry := range list {
		step, err := ParseStep(entry.(map[string]any))
		if err != nil {
			return nil, err
		}
		recipe.Steps = append(recipe.Steps, step)
	}

	return recipe, nil
}

// LoadRecipe — Load + ParseRecipe.
func LoadRecipe(raw []byte) (*domain.Recipe, error) {
	parsed, err := Load(raw)
	if err != nil {
		return nil, err
	}
	return ParseRecipe(parsed)
}

// RecipeName достаёт имя рецепта из текста без полной валидации.
// Для нечитаемого текста возвращает пустую строку.
func RecipeName(raw []byte) string {
	parsed, err := Load(raw)
	if err != nil {
		return ""
	}
	name, _ := parsed["name"].(string)
	return name
}

// ValidateRecipe проверяет уже построенный Recipe теми же правилами.
// Нужна для рецептов, собранных в коде, а не загруженных из текста.
func ValidateRecipe(recipe *domain.Recipe) error {
	if recipe == nil || len(recipe.Steps) == 0 {
		return NewValidationError("", "steps", "recipe has no steps", ErrEmptySteps)
	}
	if strings.TrimSpace(recipe.Name) == "" {
		return NewValidationError("", "name", "recipe name is required", ErrEmptyName)
	}

	seen := make(map[string]bool, len(recipe.Steps))
	for i, step := range recipe.Steps {
		if strings.TrimSpace(step.Name) == "" {
			return NewValidationError(fmt.Sprintf("#%d", i+1), "name", "step name is required", ErrEmptyStepName)
		}
		if seen[step.Name] {
			return NewValidationError(step.Name, "name", fmt.Sprintf("duplicate step name: %s", step.Name), ErrDuplicateStepName)
		}
		seen[step.Name] = true

		if strings.TrimSpace(step.Module) == "" {
			return NewValidationError(step.Name, "module", "step module is required", ErrEmptyModule)
		}
		if step.Criticality != "" && !step.Criticality.IsValid() {
			return NewValidationError(step.Name, "criticality", fmt.Sprintf("unknown criticality %q", step.Criticality), ErrInvalidCriticality)
		}
		if err := state.ValidateValue(step.Args); err != nil {
			return NewValidationError(step.Name, "args", err.Error(), ErrArgsNotSerializable)
		}
		if err := state.ValidateValue(step.CompensateArgs); err != nil {
			return NewValidationError(step.Name, "compensate_args", err.Error(), ErrArgsNotSerializable)
		}
	}

	return nil
}

// stepModule возвращает модуль шага (поле module или scriptlet).
func stepModule(m map[string]any) (string, error) {
	raw, ok := m["module"]
	if !ok {
		raw = m["scriptlet"]
	}
	if raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("module must be a string, got %s", typeName(raw))
	}
	return strings.TrimSpace(s), nil
}

// stepCriticality вычисляет Criticality из полей critical и on_failure.
func stepCriticality(name string, m map[string]any) (domain.Criticality, error) {
	result := domain.CriticalityAbort
	fromCritical := false

	if raw, ok := m["critical"]; ok {
		b, ok := raw.(bool)
		if !ok {
			return "", NewValidationError(name, "critical", fmt.Sprintf("critical must be a boolean, got %s", typeName(raw)), ErrInvalidCriticality)
		}
		if !b {
			result = domain.CriticalityContinue
		}
		fromCritical = true
	}

	if raw, ok := m["on_failure"]; ok {
		s, ok := raw.(string)
		if !ok {
			return "", NewValidationError(name, "on_failure", fmt.Sprintf("on_failure must be a string, got %s", typeName(raw)), ErrInvalidCriticality)
		}
		c, ok := domain.ParseCriticality(s)
		if !ok {
			return "", NewValidationError(name, "on_failure", fmt.Sprintf("on_failure must be abort or continue, got %q", s), ErrInvalidCriticality)
		}
		if fromCritical && c != result {
			return "", NewValidationError(name, "on_failure", "critical and on_failure disagree", ErrInvalidCriticality)
		}
		result = c
	}

	return result, nil
}

func checkArgs(step, field string, raw any) error {
	if raw == nil {
		return nil
	}
	if _, ok := raw.(map[string]any); !ok {
		return NewValidationError(step, field, fmt.Sprintf("%s must be a mapping, got %s", field, typeName(raw)), ErrArgsNotMapping)
	}
	if err := state.ValidateValue(raw); err != nil {
		return NewValidationError(step, field, err.Error(), ErrArgsNotSerializable)
	}
	return nil
}

func checkOptionalString(m map[string]any, field, step string) error {
	raw, ok := m[field]
	if !ok || raw == nil {
		return nil
	}
	if _, ok := raw.(string); !ok {
		return NewValidationError(step, field, fmt.Sprintf("%s must be a string, got %s", field, typeName(raw)), ErrInvalidField)
	}
	return nil
}

// copyArgs возвращает независимую копию args.
func copyArgs(raw any) (map[string]any, error) {
	if raw == nil {
		return make(map[string]any), nil
	}
	copied, err := state.Copy(raw)
	if err != nil {
		return nil, err
	}
	return copied.(map[string]any), nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64, float64, uint64:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "mapping"
	case map[any]any:
		return "mapping with non-string keys"
	default:
		return fmt.Sprintf("%T", v)
	}
}
