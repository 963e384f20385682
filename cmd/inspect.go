package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/brensch/pscparquet/internal/inspector"
	"github.com/brensch/pscparquet/internal/storage"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [dir]",
	Short: "Summarise processed Parquet files using DuckDB",
	Long: `Finds every *.parquet file under dir (default: the processed zone of the
local storage backend), groups them by snapshot date and prints each date's
schema together with per-partition row counts and notified_on ranges.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		dir := filepath.Join(cfg.LocalStoreDir, cfg.Bucket, string(storage.ZoneProcessed))
		if len(args) > 0 {
			dir = args[0]
		}

		if _, err := inspector.Inspect(cmd.Context(), getDB(), dir, cmd.OutOrStdout(), logger); err != nil {
			return fmt.Errorf("inspection failed: %w", err)
		}
		return nil
	},
}
