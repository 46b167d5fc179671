package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewSubmitCmd создаёт команду отправки рецепта на сервер.
func NewSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var contextFile string
	var sets []string
	var contextName string
	var sync bool

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Submit a recipe to the API server",
		Long: `Submit a recipe to the API server.

By default the run is queued and the command prints its ID. With --sync
the server executes the recipe within the request and the report is
printed; the exit code is 1 if the run is aborted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			values, err := initialValues(contextFile, sets)
			if err != nil {
				return err
			}

			req := CreateRunRequest{
				Recipe:      string(raw),
				Context:     values,
				ContextName: contextName,
			}

			if !sync {
				runID, err := client.SubmitRun(req)
				if err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Run submitted: %s", runID))
				out.Print([]string{"RUN_ID"}, [][]string{{runID}}, map[string]string{"run_id": runID})
				return nil
			}

			res, err := client.CreateRun(req)
			if err != nil {
				return err
			}
			if out.IsJSON() {
				out.JSON(res)
			} else {
				out.Report(res.Report)
				out.Values(res.Context)
			}
			return runError(res.Report)
		},
	}

	cmd.Flags().StringVar(&contextFile, "context", "", "Initial context file (YAML or JSON mapping)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Initial context value as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&contextName, "context-name", "", "Run against a named shared context")
	cmd.Flags().BoolVar(&sync, "sync", false, "Execute synchronously and print the report")

	return cmd
}

// NewRunsCmd создаёт группу команд для runs на сервере.
func NewRunsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs on the API server",
	}

	cmd.AddCommand(
		newRunsListCmd(clientFn, outputFn),
		newRunsShowCmd(clientFn, outputFn),
		newRunsCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var recipe string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(ListRunsOpts{
				Recipe: recipe,
				Status: status,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "RECIPE", "STATUS", "CONTEXT", "DURATION_MS", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID, r.Recipe, r.Status, r.ContextName, strconv.FormatInt(r.DurationMs, 10), r.CreatedAt}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&recipe, "recipe", "", "Filter by recipe name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (SUCCEEDED, SUCCEEDED_WITH_FAILURES, ABORTED, CANCELLED, REJECTED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunsShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			if out.IsJSON() || run.Report == nil {
				out.Print(
					[]string{"ID", "RECIPE", "STATUS", "ERROR", "CREATED"},
					[][]string{{run.ID, run.Recipe, run.Status, run.Error, run.CreatedAt}},
					run,
				)
				return nil
			}
			out.Report(run.Report)
			return nil
		},
	}
}

func newRunsCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel an active run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.CancelRun(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Cancellation requested: %s", args[0]))
			return nil
		},
	}
}

// NewContextCmd создаёт команду просмотра общего контекста на сервере.
func NewContextCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "context NAME",
		Short: "Show a named shared context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			snapshot, err := client.GetContext(args[0], history)
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(snapshot)
				return nil
			}
			out.Values(snapshot.Values)
			if history > 0 {
				out.History(snapshot.History)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&history, "history", 0, "Print the last N context changes")

	return cmd
}
