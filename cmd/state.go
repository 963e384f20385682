package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/brensch/pscparquet/internal/db"
	"github.com/brensch/pscparquet/internal/partition"
)

var (
	stateLimit       int
	stateFilterEvent string
	stateLatest      bool
	stateDate        string
)

// stateCmd shows the partition event log.
var stateCmd = &cobra.Command{
	Use:   "state [partition]",
	Short: "View the event log history for snapshot partitions",
	Long: `Queries the DuckDB event log and displays the history of every partition,
or of one partition (e.g. 3of31). With --latest and a partition, prints only
the partition's most recent event for --date (default today).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := getLogger()
		conn := getDB()

		partitionFilter := ""
		if len(args) > 0 {
			id, err := partition.Parse(args[0])
			if err != nil {
				return err
			}
			partitionFilter = string(id)
		}

		if stateLatest {
			if partitionFilter == "" {
				return fmt.Errorf("--latest requires a partition argument")
			}
			date := time.Now()
			if stateDate != "" {
				var err error
				if date, err = time.Parse(partition.DateLayout, stateDate); err != nil {
					return fmt.Errorf("invalid --date %q: %w", stateDate, err)
				}
			}
			event, ts, msg, found, err := db.GetLatestEvent(ctx, conn, partitionFilter, date)
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintf(cmd.OutOrStdout(), "No events for %s on %s.\n", partitionFilter, date.Format(partition.DateLayout))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s %s\n", partitionFilter, event, ts.Format(time.RFC3339), msg)
			return nil
		}

		logger.Debug("Querying database event log", "partition_filter", partitionFilter, "event_filter", stateFilterEvent, "limit", stateLimit)
		if err := db.DisplayHistory(ctx, conn, cmd.OutOrStdout(), partitionFilter, stateFilterEvent, stateLimit); err != nil {
			logger.Error("Failed to display state history", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of log records displayed")
	stateCmd.Flags().StringVarP(&stateFilterEvent, "event", "e", "", "Filter records by event type (e.g. download_end, raw_uploaded, process_end, error)")
	stateCmd.Flags().BoolVar(&stateLatest, "latest", false, "Show only the latest event of the given partition")
	stateCmd.Flags().StringVar(&stateDate, "date", "", "Snapshot date for --latest (YYYY-MM-DD)")
}
