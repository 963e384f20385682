package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/brensch/pscparquet/internal/config"
	"github.com/brensch/pscparquet/internal/partition"
	"github.com/brensch/pscparquet/internal/pipeline"
)

// Processor runs one partition to completion.
type Processor interface {
	Process(ctx context.Context, id partition.ID) (pipeline.Artifact, error)
}

// Status is a partition's position in the pool.
type Status int

const (
	StatusQueued Status = iota
	StatusRunning
	StatusDone
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Progress is sent for every status change when a progress channel is set.
type Progress struct {
	Partition partition.ID
	Status    Status
	Worker    int
	Err       error
	Elapsed   time.Duration
}

// Outcome is the final result for one partition.
type Outcome struct {
	Partition partition.ID
	Artifact  pipeline.Artifact
	Err       error
	Elapsed   time.Duration
}

func (o Outcome) OK() bool { return o.Err == nil }

// Scheduler fans partitions out over a fixed pool of workers.
type Scheduler struct {
	workers  int
	proc     Processor
	logger   *slog.Logger
	progress chan<- Progress
}

// NewScheduler sizes the pool from cfg.Workers().
func NewScheduler(cfg config.Config, proc Processor, logger *slog.Logger) *Scheduler {
	return &Scheduler{workers: cfg.Workers(), proc: proc, logger: logger}
}

func (s *Scheduler) Workers() int { return s.workers }

// WithProgress makes RunAll report status changes on ch. The caller must
// drain ch until RunAll returns; RunAll never closes it.
func (s *Scheduler) WithProgress(ch chan<- Progress) *Scheduler {
	s.progress = ch
	return s
}

// RunAll processes every partition and blocks until each has an outcome.
// A failure, or a panic, in one partition never affects the others. Nothing
// is retried. Partitions still queued when ctx is cancelled fail with ctx.Err().
func (s *Scheduler) RunAll(ctx context.Context, ids []partition.ID) map[partition.ID]Outcome {
	outcomes := make(map[partition.ID]Outcome, len(ids))
	if len(ids) == 0 {
		return outcomes
	}

	jobs := make(chan partition.ID, len(ids))
	results := make(chan Outcome, len(ids))
	for _, id := range ids {
		s.report(ctx, Progress{Partition: id, Status: StatusQueued})
		jobs <- id
	}
	close(jobs)

	numWorkers := min(s.workers, len(ids))
	s.logger.Info("Starting partition workers.", slog.Int("workers", numWorkers), slog.Int("partitions", len(ids)))

	var wg sync.WaitGroup
	for w := 1; w <= numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for id := range jobs {
				results <- s.runOne(ctx, workerID, id)
			}
		}(w)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for o := range results {
		outcomes[o.Partition] = o
	}

	failed := 0
	for _, o := range outcomes {
		if !o.OK() {
			failed++
		}
	}
	s.logger.Info("All partitions reported.", slog.Int("succeeded", len(outcomes)-failed), slog.Int("failed", failed))
	return outcomes
}

func (s *Scheduler) runOne(ctx context.Context, workerID int, id partition.ID) (o Outcome) {
	l := s.logger.With(slog.Int("worker_id", workerID), slog.String("partition", string(id)))
	start := time.Now()
	o.Partition = id

	defer func() {
		if r := recover(); r != nil {
			o.Err = fmt.Errorf("partition %s panicked: %v", id, r)
			l.Error("Worker recovered from panic.", "panic", r)
		}
		o.Elapsed = time.Since(start)
		status := StatusDone
		if o.Err != nil {
			status = StatusFailed
		}
		s.report(ctx, Progress{Partition: id, Status: status, Worker: workerID, Err: o.Err, Elapsed: o.Elapsed})
	}()

	if err := ctx.Err(); err != nil {
		l.Warn("Skipping partition, context cancelled.")
		o.Err = fmt.Errorf("partition %s not started: %w", id, err)
		return o
	}

	s.report(ctx, Progress{Partition: id, Status: StatusRunning, Worker: workerID})
	l.Debug("Worker processing partition.")
	o.Artifact, o.Err = s.proc.Process(ctx, id)
	return o
}

func (s *Scheduler) report(ctx context.Context, p Progress) {
	if s.progress == nil {
		return
	}
	select {
	case s.progress <- p:
	case <-ctx.Done():
	}
}

// Summarize joins every failure, in partition order, or returns nil.
func Summarize(outcomes map[partition.ID]Outcome) error {
	ids := make([]partition.ID, 0, len(outcomes))
	for id := range outcomes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := ids[i].Shard()
		b, _ := ids[j].Shard()
		if a != b {
			return a < b
		}
		return ids[i] < ids[j]
	})

	var errs []error
	for _, id := range ids {
		if o := outcomes[id]; o.Err != nil {
			errs = append(errs, fmt.Errorf("partition %s: %w", id, o.Err))
		}
	}
	return errors.Join(errs...)
}
