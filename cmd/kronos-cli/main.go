// Kronos CLI — инструмент командной строки для регистрации расписаний
// и просмотра задач через HTTP API.
//
// Использование:
//
//	kronos [--api-url URL] [--json] <command> [args] [flags]
//
// Команды:
//
//	now       Поставить задачу сразу
//	at        Однократный запуск
//	every     Повторяющееся расписание
//	schedule  Управление расписаниями
//	job       Просмотр задач очереди
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Kronos/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "kronos",
		Short:         "Kronos CLI — Redis-backed job scheduler",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv("KRONOS_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewNowCmd(clientFn, outputFn),
		cli.NewAtCmd(clientFn, outputFn),
		cli.NewEveryCmd(clientFn, outputFn),
		cli.NewScheduleCmd(clientFn, outputFn),
		cli.NewJobCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
