package app

import (
	"fmt"
	"time"

	"github.com/brensch/pscparquet/internal/orchestrator"
	"github.com/brensch/pscparquet/internal/partition"
)

// --- Progress Messages ---

// ProgressMsg updates the overall progress bar.
type ProgressMsg struct {
	Current  int64 // partitions with an outcome
	Total    int64
	Activity string
}

// PartitionProgressMsg updates one partition's row.
type PartitionProgressMsg struct {
	Partition   partition.ID
	Status      string // "Queued", "Running", "Complete" or "Error"
	Worker      int
	ElapsedTime time.Duration
	ErrMsg      string
}

// TaskFinishedMsg signals that the scheduler has returned.
type TaskFinishedMsg struct {
	Outcomes  map[partition.ID]orchestrator.Outcome
	Err       error
	StartTime time.Time
	EndTime   time.Time
}

func NewProgress(current, total int64, activity string) ProgressMsg {
	return ProgressMsg{Current: current, Total: total, Activity: activity}
}

// NewPartitionProgress translates a scheduler status change.
func NewPartitionProgress(p orchestrator.Progress) PartitionProgressMsg {
	msg := PartitionProgressMsg{
		Partition:   p.Partition,
		Status:      statusLabel(p.Status),
		Worker:      p.Worker,
		ElapsedTime: p.Elapsed,
	}
	if p.Err != nil {
		msg.ErrMsg = p.Err.Error()
	}
	return msg
}

func NewTaskFinished(start time.Time, outcomes map[partition.ID]orchestrator.Outcome) TaskFinishedMsg {
	return TaskFinishedMsg{
		Outcomes:  outcomes,
		Err:       orchestrator.Summarize(outcomes),
		StartTime: start,
		EndTime:   time.Now(),
	}
}

func statusLabel(s orchestrator.Status) string {
	switch s {
	case orchestrator.StatusRunning:
		return "Running"
	case orchestrator.StatusDone:
		return "Complete"
	case orchestrator.StatusFailed:
		return "Error"
	default:
		return "Queued"
	}
}

func (t TaskFinishedMsg) Error() string {
	if t.Err != nil {
		return t.Err.Error()
	}
	return ""
}

func (p ProgressMsg) String() string {
	return fmt.Sprintf("Progress: %d/%d", p.Current, p.Total)
}
func (pp PartitionProgressMsg) String() string {
	return fmt.Sprintf("PartitionProgress %s: %s", pp.Partition, pp.Status)
}
func (tf TaskFinishedMsg) String() string {
	return fmt.Sprintf("TaskFinished after %s", tf.EndTime.Sub(tf.StartTime).Round(time.Millisecond))
}
