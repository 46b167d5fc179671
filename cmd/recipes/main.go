// Recipes CLI — проверка и запуск рецептов локально или через HTTP API.
//
// Использование:
//
//	recipes [--api-url URL] [--json] [--log-level LEVEL] <command> [flags]
//
// Команды:
//
//	validate  Проверить рецепт
//	run       Выполнить рецепт локально
//	modules   Список встроенных модулей
//	submit    Отправить рецепт на сервер
//	runs      Runs на сервере
//	context   Общий контекст на сервере
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Recipes/internal/cli"
	"github.com/shaiso/Recipes/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "recipes",
		Short:         "Recipes CLI — declarative recipe runner",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "WARN", "Log level for local runs (DEBUG, INFO, WARN, ERROR)")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	loggerFn := func() *slog.Logger { return telemetry.NewLogger(os.Stderr, logLevel, "text") }

	rootCmd.AddCommand(
		cli.NewValidateCmd(outputFn),
		cli.NewRunCmd(outputFn, loggerFn),
		cli.NewModulesCmd(outputFn),
		cli.NewSubmitCmd(clientFn, outputFn),
		cli.NewRunsCmd(clientFn, outputFn),
		cli.NewContextCmd(clientFn, outputFn),
	)

	// Ctrl-C отменяет локальный run между шагами
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
