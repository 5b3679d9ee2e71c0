package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

// NewQueuesCmd создаёт команду просмотра очередей.
func NewQueuesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "Show job queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			queues, err := client.ListQueues(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"NAME", "WAITING", "ACTIVE", "DELAYED", "COMPLETED", "FAILED", "DEAD", "FAILURE_RATE"}
			rows := make([][]string, len(queues))
			for i, q := range queues {
				rows[i] = []string{
					q.Name,
					strconv.Itoa(q.Waiting),
					strconv.Itoa(q.Active),
					strconv.Itoa(q.Delayed),
					strconv.Itoa(q.Completed),
					strconv.Itoa(q.Failed),
					strconv.Itoa(q.Dead),
					percent(q.FailureRate),
				}
			}

			out.Print(headers, rows, queues)
			return nil
		},
	}
}

// NewIntegrationCmd создаёт группу команд управления интеграциями.
func NewIntegrationCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "integration",
		Aliases: []string{"integrations"},
		Short:   "Inspect upstream integrations",
	}

	cmd.AddCommand(
		newIntegrationListCmd(clientFn, outputFn),
		newIntegrationResetCmd(clientFn, outputFn),
	)

	return cmd
}

func newIntegrationListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List integrations and circuit states",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			integrations, err := client.ListIntegrations(cmd.Context(), probe)
			if err != nil {
				return err
			}

			headers := []string{"NAME", "STATE", "FAILURES", "NEXT_ATTEMPT"}
			if probe {
				headers = append(headers, "HEALTHY", "ERROR")
			}
			rows := make([][]string, len(integrations))
			for i, in := range integrations {
				row := []string{in.Name, in.State, strconv.Itoa(in.ConsecutiveFailures), orDash(in.NextAttempt)}
				if probe {
					healthy := "-"
					if in.Healthy != nil {
						healthy = strconv.FormatBool(*in.Healthy)
					}
					row = append(row, healthy, orDash(&in.Error))
				}
				rows[i] = row
			}

			out.Print(headers, rows, integrations)
			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Call health check of each integration")

	return cmd
}

func newIntegrationResetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "reset NAME",
		Short: "Close the circuit of an integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			in, err := client.ResetIntegration(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Circuit reset: %s (%s)", in.Name, in.State))
			return nil
		},
	}
}

// NewAlertsCmd создаёт команду просмотра журнала алертов.
func NewAlertsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListAlertsOpts

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List recorded alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			alerts, err := client.ListAlerts(cmd.Context(), opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "SEVERITY", "TYPE", "TITLE", "CREATED"}
			rows := make([][]string, len(alerts))
			for i, a := range alerts {
				rows[i] = []string{a.ID, a.Severity, a.Type, a.Title, a.CreatedAt}
			}

			out.Print(headers, rows, alerts)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "Filter by alert type (low_stock, zero_stock, sync_failure, ...)")
	cmd.Flags().StringVar(&opts.Severity, "severity", "", "Filter by severity (LOW, MEDIUM, HIGH, CRITICAL)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of results to skip")

	return cmd
}

// NewHealthCmd создаёт команду проверки состояния сервиса.
// Возвращает ошибку, если хотя бы одна зависимость недоступна.
func NewHealthCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check service dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			health, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}

			names := make([]string, 0, len(health.Checks))
			for name := range health.Checks {
				names = append(names, name)
			}
			sort.Strings(names)

			rows := make([][]string, len(names))
			for i, name := range names {
				rows[i] = []string{name, health.Checks[name]}
			}

			out.Print([]string{"CHECK", "RESULT"}, rows, health)
			if health.Status != "ok" {
				return fmt.Errorf("service is %s", health.Status)
			}
			return nil
		},
	}
}
