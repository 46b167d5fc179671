package engine

import (
	"errors"
	"fmt"
)

// Ошибки загрузки рецепта.
var (
	// ErrEmptyDocument — пустой текст рецепта.
	ErrEmptyDocument = errors.New("recipe document is empty")

	// ErrMalformed — текст не разбирается как YAML/JSON.
	ErrMalformed = errors.New("recipe document is malformed")

	// ErrNotMapping — верхний уровень документа не является mapping.
	ErrNotMapping = errors.New("recipe document is not a mapping")
)

// Ошибки валидации рецепта.
var (
	// ErrEmptyName — у рецепта нет имени.
	ErrEmptyName = errors.New("recipe has empty name")

	// ErrEmptySteps — рецепт не содержит шагов.
	ErrEmptySteps = errors.New("recipe has no steps")

	// ErrStepsNotList — steps не является списком.
	ErrStepsNotList = errors.New("recipe steps is not a list")

	// ErrStepNotMapping — элемент steps не является mapping.
	ErrStepNotMapping = errors.New("step entry is not a mapping")

	// ErrEmptyStepName — шаг не имеет имени.
	ErrEmptyStepName = errors.New("step has empty name")

	// ErrDuplicateStepName — несколько шагов с одинаковым именем.
	ErrDuplicateStepName = errors.New("duplicate step name")

	// ErrEmptyModule — шаг не указывает модуль.
	ErrEmptyModule = errors.New("step has empty module")

	// ErrArgsNotMapping — args не является mapping.
	ErrArgsNotMapping = errors.New("step args is not a mapping")

	// ErrArgsNotSerializable — args содержат несериализуемые значения.
	ErrArgsNotSerializable = errors.New("step args are not JSON-serializable")

	// ErrInvalidCriticality — недопустимое значение critical/on_failure.
	ErrInvalidCriticality = errors.New("invalid step criticality")

	// ErrInvalidField — поле неизвестно или имеет неверный тип.
	ErrInvalidField = errors.New("invalid field")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// FormatError — текст рецепта не удалось разобрать.
type FormatError struct {
	Message string // описание ошибки
	Err     error  // базовая ошибка (ErrEmptyDocument, ErrMalformed, ErrNotMapping)
}

// Error реализует интерфейс error.
func (e *FormatError) Error() string {
	return "recipe format: " + e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Step    string // имя шага (или "#N", если имени нет)
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Step != "" {
		return "step " + e.Step + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(step, field, message string, err error) *ValidationError {
	return &ValidationError{
		Step:    step,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

func newFormatError(err error, format string, args ...any) *FormatError {
	return &FormatError{Message: fmt.Sprintf(format, args...), Err: err}
}

// IsFormatError проверяет, есть ли FormatError в цепочке.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// IsValidationError проверяет, есть ли ValidationError в цепочке.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
