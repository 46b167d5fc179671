package steps

import (
	"errors"
	"fmt"
)

// Ошибки шагов.
var (
	// ErrModuleNotFound — модуль не найден в реестре.
	ErrModuleNotFound = errors.New("module not found")

	// ErrInvalidArgs — невалидные аргументы шага.
	ErrInvalidArgs = errors.New("invalid step args")

	// ErrStepCancelled — выполнение шага отменено.
	ErrStepCancelled = errors.New("step execution cancelled")

	// ErrStepFailed — шаг сознательно завершился с ошибкой (модуль fail).
	ErrStepFailed = errors.New("step failed")

	// ErrStepPanic — модуль запаниковал.
	ErrStepPanic = errors.New("step panicked")
)

// ResolutionError — модуль шага не найден в реестре.
//
// Это не паника и не фатальная ошибка: движок записывает её в отчёт
// как FAILED и дальше действует по критичности шага.
type ResolutionError struct {
	Module string
}

// Error реализует интерфейс error.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrModuleNotFound, e.Module)
}

// Unwrap возвращает ErrModuleNotFound.
func (e *ResolutionError) Unwrap() error {
	return ErrModuleNotFound
}

// StepExecutionError — модуль вернул ошибку при выполнении.
type StepExecutionError struct {
	Step   string // имя шага
	Module string // модуль
	Err    error  // ошибка модуля
}

// Error реализует интерфейс error.
func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s (%s): %v", e.Step, e.Module, e.Err)
}

// Unwrap возвращает ошибку модуля.
func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

// IsResolutionError проверяет, есть ли ResolutionError в цепочке.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}
