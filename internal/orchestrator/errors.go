package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrNilRecipe — в Run передан nil рецепт.
	ErrNilRecipe = errors.New("recipe is nil")

	// ErrNilContext — в Run не передан Context.
	ErrNilContext = errors.New("context store is nil")

	// ErrRunAlreadyActive — run с таким ID уже выполняется.
	ErrRunAlreadyActive = errors.New("run already being processed")

	// ErrInvalidTransition — недопустимый переход фазы run.
	ErrInvalidTransition = errors.New("invalid run phase transition")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")

	// ErrUnknownRollback — неизвестный режим отката в конфигурации.
	ErrUnknownRollback = errors.New("unknown rollback mode")
)
