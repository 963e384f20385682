package cmd

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var (
	scheduleSpec  string
	scheduleFlags batchFlags
)

// scheduleCmd runs the batch on a cron schedule until interrupted.
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the ingestion batch on a cron schedule",
	Long: `Runs the same batch as 'run' every time the --cron expression fires
(standard five field syntax, e.g. "0 6 * * *"). Runs never overlap: a tick
that fires while a batch is still running is skipped. Stops on interrupt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := getLogger()
		cfg := getConfig()
		cfg.Partitions = scheduleFlags.partitions
		if scheduleFlags.tui {
			return fmt.Errorf("--tui is not supported by schedule")
		}

		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		_, err := c.AddFunc(scheduleSpec, func() {
			logger.Info("Scheduled batch starting.")
			if err := runBatch(ctx, cfg, getDB(), logger, scheduleFlags, false); err != nil {
				logger.Error("Scheduled batch failed.", "error", err)
				return
			}
			logger.Info("Scheduled batch finished.")
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", scheduleSpec, err)
		}

		c.Start()
		logger.Info("Scheduler started.", slog.String("cron", scheduleSpec))
		<-ctx.Done()
		logger.Info("Stopping scheduler, waiting for a running batch to finish.")
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "0 6 * * *", "Cron expression for batch start times")
	scheduleFlags.register(scheduleCmd, true)
}
