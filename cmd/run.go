package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/brensch/pscparquet/internal/app"
	"github.com/brensch/pscparquet/internal/config"
	"github.com/brensch/pscparquet/internal/db"
	"github.com/brensch/pscparquet/internal/downloader"
	"github.com/brensch/pscparquet/internal/extractor"
	"github.com/brensch/pscparquet/internal/orchestrator"
	"github.com/brensch/pscparquet/internal/partition"
	"github.com/brensch/pscparquet/internal/pipeline"
	"github.com/brensch/pscparquet/internal/storage"
)

// batchFlags selects the partitions of one batch.
type batchFlags struct {
	partitions    []string
	shards        int
	total         int
	discover      bool
	skipCompleted bool
	tui           bool
}

func (b *batchFlags) register(cmd *cobra.Command, skipCompleted bool) {
	cmd.Flags().StringSliceVarP(&b.partitions, "partitions", "p", nil, "Explicit partition IDs, e.g. 1of31,2of31 (overrides --shards)")
	cmd.Flags().IntVar(&b.shards, "shards", config.DefaultShards, "Process the first N shards of the snapshot")
	cmd.Flags().IntVar(&b.total, "total", config.DefaultTotalShards, "Total shards in the snapshot")
	cmd.Flags().BoolVar(&b.discover, "discover", false, "Process every partition published today, read from the listing page")
	cmd.Flags().BoolVar(&b.skipCompleted, "skip-completed", skipCompleted, "Skip partitions already processed today according to the state log")
	cmd.Flags().BoolVar(&b.tui, "tui", false, "Show a live progress view instead of log lines on stderr")
}

var runFlags batchFlags

// runCmd represents the full ingestion workflow
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Download, stage, flatten and persist snapshot partitions",
	Long: `Processes a batch of snapshot partitions concurrently. For each partition:
1. Downloads psc-snapshot-<today>_<id>.zip.
2. Uploads the archive unchanged to raw/year=/month=/day=/.
3. Extracts and parses the NDJSON records, flattens nested fields, explodes lists and casts types.
4. Writes Parquet and uploads it to processed/year=/month=/day=/.
A failed partition never stops the others; the command exits non-zero if any failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		cfg.Partitions = runFlags.partitions
		return runBatch(cmd.Context(), cfg, getDB(), getLogger(), runFlags, false)
	},
}

// ingestCmd stages raw archives only.
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Download snapshot partitions and stage the raw archives only",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		cfg.Partitions = ingestFlags.partitions
		return runBatch(cmd.Context(), cfg, getDB(), getLogger(), ingestFlags, true)
	},
}

var ingestFlags batchFlags

func init() {
	runFlags.register(runCmd, false)
	ingestFlags.register(ingestCmd, false)
}

// runBatch resolves the batch, runs it through the scheduler and reports.
func runBatch(ctx context.Context, cfg config.Config, conn *sql.DB, logger *slog.Logger, flags batchFlags, rawOnly bool) error {
	if flags.tui {
		// Log lines would tear the progress view.
		if strings.EqualFold(logOutput, "stderr") || logOutput == "" {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
	}

	dl, err := downloader.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create downloader: %w", err)
	}
	now := time.Now()

	ids, err := resolvePartitions(ctx, cfg, dl, flags, now)
	if err != nil {
		return err
	}
	if flags.skipCompleted {
		ids, err = dropCompleted(ctx, conn, ids, now, logger)
		if err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		logger.Info("No partitions to process.")
		return nil
	}

	up, err := storage.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create %s storage: %w", cfg.StorageBackend, err)
	}
	stateLog := db.NewLog(conn)
	p := pipeline.New(pipeline.Options{
		StagingDir: cfg.StagingDir,
		Cast:       cfg.Cast,
		RawOnly:    rawOnly,
	}, dl, extractor.NewZip(logger), up, stateLog, logger)
	sched := orchestrator.NewScheduler(cfg, p, logger)

	logger.Info("Starting batch.",
		slog.String("run_id", stateLog.RunID()),
		slog.Int("partitions", len(ids)),
		slog.Int("workers", sched.Workers()),
		slog.Bool("raw_only", rawOnly))

	var outcomes map[partition.ID]orchestrator.Outcome
	if flags.tui {
		outcomes, err = app.Run(ctx, ids, func(ctx context.Context, progress chan<- orchestrator.Progress) map[partition.ID]orchestrator.Outcome {
			return sched.WithProgress(progress).RunAll(ctx, ids)
		}, logger)
		if err != nil {
			return err
		}
	} else {
		outcomes = sched.RunAll(ctx, ids)
	}

	printOutcomes(logger, ids, outcomes)
	if err := orchestrator.Summarize(outcomes); err != nil {
		return fmt.Errorf("batch finished with failures: %w", err)
	}
	return nil
}

func resolvePartitions(ctx context.Context, cfg config.Config, dl *downloader.Client, flags batchFlags, date time.Time) ([]partition.ID, error) {
	switch {
	case len(cfg.Partitions) > 0:
		return partition.ParseAll(cfg.Partitions)
	case flags.discover:
		ids, err := dl.DiscoverPartitions(ctx, cfg.ListingURL, date)
		if err != nil {
			return nil, fmt.Errorf("failed to discover partitions: %w", err)
		}
		return ids, nil
	default:
		return partition.Range(flags.shards, flags.total)
	}
}

func dropCompleted(ctx context.Context, conn *sql.DB, ids []partition.ID, date time.Time, logger *slog.Logger) ([]partition.ID, error) {
	completed, err := db.GetCompletedPartitions(ctx, conn, date)
	if err != nil {
		return nil, err
	}
	kept := ids[:0:0]
	for _, id := range ids {
		if completed[string(id)] {
			logger.Info("Skipping completed partition.", slog.String("partition", string(id)))
			continue
		}
		kept = append(kept, id)
	}
	return kept, nil
}

func printOutcomes(logger *slog.Logger, ids []partition.ID, outcomes map[partition.ID]orchestrator.Outcome) {
	for _, id := range ids {
		o, ok := outcomes[id]
		if !ok {
			continue
		}
		if o.OK() {
			logger.Info("Partition succeeded.",
				slog.String("partition", string(id)),
				slog.String("key", o.Artifact.Key),
				slog.Int("rows", o.Artifact.Rows),
				slog.Duration("elapsed", o.Elapsed.Round(time.Millisecond)))
			continue
		}
		logger.Error("Partition failed.",
			slog.String("partition", string(id)),
			slog.String("stage", pipeline.Classify(o.Err)),
			slog.String("error", o.Err.Error()))
	}
}
