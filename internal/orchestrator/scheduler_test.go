package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/pscparquet/internal/config"
	"github.com/brensch/pscparquet/internal/partition"
	"github.com/brensch/pscparquet/internal/pipeline"
)

type fakeProcessor struct {
	fail     map[partition.ID]error
	panicOn  partition.ID
	delay    time.Duration
	active   atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	executed []partition.ID
}

func (f *fakeProcessor) Process(ctx context.Context, id partition.ID) (pipeline.Artifact, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	f.executed = append(f.executed, id)
	f.mu.Unlock()

	time.Sleep(f.delay)
	if id == f.panicOn {
		panic("boom")
	}
	if err := f.fail[id]; err != nil {
		return pipeline.Artifact{Partition: id}, err
	}
	return pipeline.Artifact{Partition: id, Key: "processed/" + string(id)}, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRunAll_IsolatesFailures(t *testing.T) {
	ids, err := partition.Range(4, 31)
	require.NoError(t, err)
	proc := &fakeProcessor{fail: map[partition.ID]error{"2of31": fmt.Errorf("%w: 404", pipeline.ErrRetrieval)}}

	outcomes := NewScheduler(config.Config{NumWorkers: 2}, proc, discard()).RunAll(context.Background(), ids)

	require.Len(t, outcomes, 4)
	for _, id := range ids {
		o, ok := outcomes[id]
		require.True(t, ok, "missing outcome for %s", id)
		if id == "2of31" {
			assert.False(t, o.OK())
			assert.True(t, errors.Is(o.Err, pipeline.ErrRetrieval))
			continue
		}
		assert.True(t, o.OK(), "partition %s: %v", id, o.Err)
		assert.Equal(t, "processed/"+string(id), o.Artifact.Key)
	}
	assert.Len(t, proc.executed, 4)

	err = Summarize(outcomes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrRetrieval))
	assert.Contains(t, err.Error(), "partition 2of31")
}

func TestRunAll_BoundsConcurrency(t *testing.T) {
	ids, err := partition.Range(12, 12)
	require.NoError(t, err)
	proc := &fakeProcessor{delay: 20 * time.Millisecond}

	s := NewScheduler(config.Config{NumWorkers: 3}, proc, discard())
	outcomes := s.RunAll(context.Background(), ids)

	assert.Len(t, outcomes, 12)
	assert.Equal(t, 3, s.Workers())
	assert.LessOrEqual(t, proc.peak.Load(), int32(3))
	assert.NoError(t, Summarize(outcomes))
}

func TestRunAll_DefaultWorkerCount(t *testing.T) {
	s := NewScheduler(config.Config{}, &fakeProcessor{}, discard())
	assert.Equal(t, config.DefaultNumWorkers(), s.Workers())
	assert.GreaterOrEqual(t, s.Workers(), 1)
}

func TestRunAll_RecoversPanics(t *testing.T) {
	proc := &fakeProcessor{panicOn: "1of2"}

	outcomes := NewScheduler(config.Config{NumWorkers: 1}, proc, discard()).RunAll(context.Background(), []partition.ID{"1of2", "2of2"})

	assert.Error(t, outcomes["1of2"].Err)
	assert.NoError(t, outcomes["2of2"].Err)
}

func TestRunAll_Progress(t *testing.T) {
	ids := []partition.ID{"1of2", "2of2"}
	proc := &fakeProcessor{fail: map[partition.ID]error{"2of2": errors.New("bad")}}
	ch := make(chan Progress, 16)

	NewScheduler(config.Config{NumWorkers: 2}, proc, discard()).WithProgress(ch).RunAll(context.Background(), ids)
	close(ch)

	final := map[partition.ID]Status{}
	seen := map[Status]int{}
	for p := range ch {
		final[p.Partition] = p.Status
		seen[p.Status]++
	}
	assert.Equal(t, map[partition.ID]Status{"1of2": StatusDone, "2of2": StatusFailed}, final)
	assert.Equal(t, 2, seen[StatusQueued])
	assert.Equal(t, 2, seen[StatusRunning])
}

func TestRunAll_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	proc := &fakeProcessor{}

	outcomes := NewScheduler(config.Config{NumWorkers: 2}, proc, discard()).RunAll(ctx, []partition.ID{"1of2", "2of2"})

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.True(t, errors.Is(o.Err, context.Canceled))
	}
	assert.Empty(t, proc.executed)
}

func TestRunAll_Empty(t *testing.T) {
	outcomes := NewScheduler(config.Config{NumWorkers: 2}, &fakeProcessor{}, discard()).RunAll(context.Background(), nil)
	assert.Empty(t, outcomes)
	assert.NoError(t, Summarize(outcomes))
}
