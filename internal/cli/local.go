package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/engine"
	"github.com/shaiso/Recipes/internal/orchestrator"
	"github.com/shaiso/Recipes/internal/state"
	"github.com/shaiso/Recipes/internal/steps"
)

// RunResult — вывод локального run в режиме --json.
type RunResult struct {
	Report  *domain.ExecutionReport `json:"report"`
	Context map[string]any          `json:"context"`
	History []state.Change          `json:"history,omitempty"`
}

// NewValidateCmd создаёт команду проверки рецепта без выполнения.
func NewValidateCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a recipe file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			recipe, err := engine.LoadRecipe(raw)
			if err != nil {
				return err
			}

			rows := make([][]string, len(recipe.Steps))
			for i, s := range recipe.Steps {
				rows[i] = []string{s.Name, s.Module, string(s.Criticality), s.When}
			}
			out.Print([]string{"STEP", "MODULE", "ON_FAILURE", "WHEN"}, rows, recipe)
			out.Success(fmt.Sprintf("Recipe %q is valid: %d steps", recipe.Name, len(recipe.Steps)))
			return nil
		},
	}
}

// NewRunCmd создаёт команду локального выполнения рецепта.
func NewRunCmd(outputFn func() *Output, loggerFn func() *slog.Logger) *cobra.Command {
	var contextFile string
	var sets []string
	var history int
	var rollback string

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a recipe locally",
		Long: `Execute a recipe in-process against a fresh context.

The initial context is read from --context (YAML or JSON mapping) and
then overridden by --set KEY=VALUE pairs. Exits with code 1 if the run
is aborted by a critical step or cancelled.

--rollback selects what happens after an abort: none, modules (call the
compensate modules of executed steps), snapshot (restore the initial
context) or full (modules, then snapshot).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			logger := loggerFn()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			values, err := initialValues(contextFile, sets)
			if err != nil {
				return err
			}
			st, err := state.NewWithValues(values)
			if err != nil {
				return err
			}

			registry := steps.DefaultRegistry()
			compensator, err := orchestrator.NewCompensator(rollback, registry)
			if err != nil {
				return err
			}
			o := orchestrator.New(orchestrator.Config{
				Resolver:    registry,
				Observers:   []orchestrator.Observer{orchestrator.NewLogObserver(logger)},
				Compensator: compensator,
				Logger:      logger,
			})

			report, err := o.RunSource(cmd.Context(), raw, st)
			if err != nil {
				return err
			}

			printRun(out, report, st, history)
			return runError(report)
		},
	}

	cmd.Flags().StringVar(&contextFile, "context", "", "Initial context file (YAML or JSON mapping)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Initial context value as KEY=VALUE (repeatable)")
	cmd.Flags().IntVar(&history, "history", 0, "Print the last N context changes")
	cmd.Flags().StringVar(&rollback, "rollback", orchestrator.RollbackModules, "Rollback after abort: none, modules, snapshot, full")

	return cmd
}

// NewModulesCmd создаёт команду списка встроенных модулей.
func NewModulesCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List built-in step modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			modules := steps.DefaultRegistry().Modules()
			rows := make([][]string, len(modules))
			for i, m := range modules {
				rows[i] = []string{m}
			}
			out.Print([]string{"MODULE"}, rows, modules)
			return nil
		},
	}
}

// printRun выводит отчёт, итоговый контекст и журнал.
func printRun(out *Output, report *domain.ExecutionReport, st *state.Context, history int) {
	var changes []state.Change
	if history > 0 {
		changes = st.History(history)
	}

	if out.IsJSON() {
		out.JSON(RunResult{Report: report, Context: st.Snapshot(), History: changes})
		return
	}

	out.Report(report)
	out.Values(st.Snapshot())
	if history > 0 {
		out.History(changes)
	}
}

// runError возвращает ошибку для статусов, при которых CLI выходит с кодом 1.
func runError(report *domain.ExecutionReport) error {
	switch report.Status {
	case domain.RunStatusAborted, domain.RunStatusCancelled:
		if report.FailedStep != "" {
			return fmt.Errorf("%w: %s (step %s)", ErrRunAborted, report.Status, report.FailedStep)
		}
		return fmt.Errorf("%w: %s", ErrRunAborted, report.Status)
	}
	return nil
}

// initialValues собирает начальный контекст из файла и --set.
func initialValues(contextFile string, sets []string) (map[string]any, error) {
	values := make(map[string]any)

	if contextFile != "" {
		raw, err := os.ReadFile(contextFile)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("parse context file %s: %w", contextFile, err)
		}
		if values == nil {
			values = make(map[string]any)
		}
	}

	for _, kv := range sets {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSet, kv)
		}
		values[key] = parseScalar(raw)
	}

	return values, nil
}

// parseScalar разбирает значение --set как YAML-скаляр: 5 → int,
// true → bool, [1,2] → список. Всё нечитаемое остаётся строкой.
func parseScalar(raw string) any {
	if raw == "" {
		return ""
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	return v
}
