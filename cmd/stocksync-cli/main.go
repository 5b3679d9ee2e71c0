// stocksync CLI — инструмент командной строки для административного
// API воркера.
//
// Использование:
//
//	stocksync [--api-url URL] [--json] <command> [subcommand] [flags]
//
// Команды:
//
//	sync         Запуск и состояние синхронизации
//	queues       Счётчики очередей
//	integration  Состояние интеграций, сброс circuit breaker'а
//	alerts       Журнал алертов
//	health       Проверка зависимостей сервиса
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/stocksync/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "stocksync",
		Short:         "stocksync CLI — ERP/POS stock synchronization",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv("STOCKSYNC_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewSyncCmd(clientFn, outputFn),
		cli.NewQueuesCmd(clientFn, outputFn),
		cli.NewIntegrationCmd(clientFn, outputFn),
		cli.NewAlertsCmd(clientFn, outputFn),
		cli.NewHealthCmd(clientFn, outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
