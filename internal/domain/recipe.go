package domain

// Recipe — разобранное и провалидированное описание рецепта.
//
// Рецепт — это упорядоченная последовательность шагов. Шаги выполняются
// строго в объявленном порядке, каждый пишет результаты в общий контекст.
// После парсинга Recipe не меняется.
type Recipe struct {
	// Name — имя рецепта (непустое).
	Name string `json:"name"`

	// Description — описание назначения рецепта.
	Description string `json:"description,omitempty"`

	// Steps — шаги в порядке выполнения (минимум один).
	Steps []StepDef `json:"steps"`
}

// StepNames возвращает имена шагов в порядке объявления.
func (r *Recipe) StepNames() []string {
	names := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		names[i] = s.Name
	}
	return names
}

// Step возвращает шаг по имени.
func (r *Recipe) Step(name string) (StepDef, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepDef{}, false
}

// StepDef — определение шага в рецепте.
type StepDef struct {
	// Name — уникальное в рамках рецепта имя шага.
	Name string `json:"name"`

	// Module — имя модуля (scriptlet), который выполняет шаг.
	Module string `json:"module"`

	// Description — человекочитаемое описание.
	Description string `json:"description,omitempty"`

	// Args — аргументы модуля. Значения JSON-сериализуемы.
	// Строки могут содержать Go templates: "{{ .Context.value }}".
	Args map[string]any `json:"args,omitempty"`

	// Criticality — что делать при падении шага.
	Criticality Criticality `json:"criticality"`

	// When — условие выполнения (Go template, возвращающий bool).
	// Если условие ложно, шаг получает статус SKIPPED.
	When string `json:"when,omitempty"`

	// Compensate — модуль компенсирующего действия (используется при откате).
	Compensate string `json:"compensate,omitempty"`

	// CompensateArgs — аргументы компенсирующего модуля.
	CompensateArgs map[string]any `json:"compensate_args,omitempty"`
}

// IsCritical возвращает true, если падение шага прерывает run.
func (s StepDef) IsCritical() bool {
	return s.Criticality != CriticalityContinue
}

// HasCompensation возвращает true, если у шага объявлен компенсирующий модуль.
func (s StepDef) HasCompensation() bool {
	return s.Compensate != ""
}
