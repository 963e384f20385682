package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/brensch/pscparquet/internal/downloader"
	"github.com/brensch/pscparquet/internal/partition"
)

var discoverDate string

// discoverCmd lists the partitions published for a snapshot date.
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List the snapshot partitions published on the listing page",
	Long: `Reads the publisher's listing page and prints the archive name of every
partition published for --date (YYYY-MM-DD). Without --date the newest
snapshot linked from the page is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := getConfig()
		logger := getLogger()

		dl, err := downloader.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create downloader: %w", err)
		}

		var date time.Time
		if discoverDate != "" {
			date, err = time.Parse(partition.DateLayout, discoverDate)
			if err != nil {
				return fmt.Errorf("invalid --date %q: %w", discoverDate, err)
			}
		} else {
			date, err = dl.LatestSnapshotDate(ctx, cfg.ListingURL)
			if err != nil {
				return err
			}
		}

		ids, err := dl.DiscoverPartitions(ctx, cfg.ListingURL, date)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Snapshot %s: %d partitions\n", date.Format(partition.DateLayout), len(ids))
		for _, id := range ids {
			fmt.Fprintf(out, "  %-8s %s\n", id, dl.URL(partition.ArchiveName(date, id)))
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverDate, "date", "", "Snapshot date (YYYY-MM-DD); default is the newest published")
}
