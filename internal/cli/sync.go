package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewSyncCmd создаёт группу команд синхронизации.
func NewSyncCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Trigger and inspect synchronization",
	}

	cmd.AddCommand(
		newSyncTriggerCmd(clientFn, outputFn),
		newSyncStatusCmd(clientFn, outputFn),
	)

	return cmd
}

func newSyncTriggerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts TriggerOptions

	cmd := &cobra.Command{
		Use:   "trigger TYPE SOURCE RESOURCE_ID",
		Short: "Enqueue a sync job",
		Long: "Enqueue a sync job.\n\n" +
			"TYPE is one of full_sync, incremental_sync, stock_sync, product_sync, customer_sync, critical_stock.\n" +
			"SOURCE is pos or erp.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.TriggerSync(cmd.Context(), TriggerRequest{
				Type:       args[0],
				Source:     args[1],
				ResourceID: args[2],
				Options:    opts,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job queued: %s", resp.JobID))
			out.Print(
				[]string{"JOB_ID", "QUEUE", "QUEUE_JOB_ID"},
				[][]string{{resp.JobID, resp.Queue, resp.QueueJobID}},
				resp,
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "Page or batch size (worker default if not specified)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Ignore the recent-sync window")
	cmd.Flags().IntVar(&opts.Priority, "priority", 0, "Job priority (queue default if not specified)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Start offset for product pagination")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of products")
	cmd.Flags().StringSliceVar(&opts.ProductIDs, "product", nil, "Restrict to product IDs (repeatable)")

	return cmd
}

func newSyncStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status SOURCE RESOURCE_ID",
		Short: "Show sync status of a resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			s, err := client.SyncStatus(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			lastError := s.LastError
			out.Print(
				[]string{"SOURCE", "RESOURCE", "STATUS", "PRODUCTS", "STOCK", "ERRORS", "LAST_PRODUCT_SYNC", "LAST_STOCK_SYNC", "LAST_ERROR"},
				[][]string{{
					s.Source,
					s.ResourceID,
					s.Status,
					strconv.Itoa(s.ProductsSynced),
					strconv.Itoa(s.StockSynced),
					strconv.Itoa(s.ErrorCount),
					orDash(s.LastProductSync),
					orDash(s.LastStockSync),
					orDash(&lastError),
				}},
				s,
			)
			return nil
		},
	}
}
