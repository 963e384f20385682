// Package app renders live partition progress for `run --tui`.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/pscparquet/internal/orchestrator"
	"github.com/brensch/pscparquet/internal/partition"
)

var (
	titleStyle              = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	errorStyle              = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle               = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	progressBarStyle        = lipgloss.NewStyle().Padding(0, 1)
	fileProgressHeaderStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	fileStatusStyle         = map[string]lipgloss.Style{
		"Running":  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"Complete": lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		"Error":    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		"Queued":   lipgloss.NewStyle().Foreground(lipgloss.Color("248")),
	}
)

// Task runs the batch, reporting status changes on progress, and returns
// every partition's outcome.
type Task func(ctx context.Context, progress chan<- orchestrator.Progress) map[partition.ID]orchestrator.Outcome

type PartitionProgress struct {
	Partition partition.ID
	Status    string
	Worker    int
	ErrMsg    string
	Start     time.Time
	Elapsed   time.Duration
}

type AppModel struct {
	State            AppState
	spinner          spinner.Model
	overallProgress  progress.Model
	progressBarWidth int

	mu             sync.RWMutex
	partitions     map[partition.ID]*PartitionProgress
	order          []partition.ID
	overallTotal   int64
	overallCurrent int64
	lastActivity   string
	taskStartTime  time.Time

	Outcomes map[partition.ID]orchestrator.Outcome
	FatalErr error
	Quitting bool

	termWidth  int
	termHeight int

	task      Task
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	uiMsgChan chan tea.Msg
	logger    *slog.Logger
}

// NewAppModel prepares a view over ids. The task starts on Init.
func NewAppModel(ctx context.Context, ids []partition.ID, task Task, logger *slog.Logger) *AppModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ctx, cancel := context.WithCancel(ctx)
	m := &AppModel{
		State:           Running,
		spinner:         s,
		overallProgress: progress.New(progress.WithDefaultGradient()),
		partitions:      make(map[partition.ID]*PartitionProgress, len(ids)),
		order:           make([]partition.ID, 0, len(ids)),
		overallTotal:    int64(len(ids)),
		termWidth:       80,
		termHeight:      24,
		task:            task,
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
		uiMsgChan:       make(chan tea.Msg),
		logger:          logger,
	}
	for _, id := range ids {
		m.partitions[id] = &PartitionProgress{Partition: id, Status: "Queued"}
		m.order = append(m.order, id)
	}
	return m
}

// --- Bubbletea Interface ---

func (m *AppModel) Init() tea.Cmd {
	m.taskStartTime = time.Now()
	return tea.Batch(m.spinner.Tick, m.startTask(m.uiMsgChan), m.waitForActivityCmd(m.uiMsgChan))
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.logger.Info("Quit requested, cancelling remaining partitions.")
			m.Quitting = true
			m.State = Exiting
			m.cancel()
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.progressBarWidth = max(0, m.termWidth-4)
		m.overallProgress.Width = m.progressBarWidth
	case ProgressMsg:
		m.mu.Lock()
		m.overallCurrent = msg.Current
		m.overallTotal = msg.Total
		m.lastActivity = msg.Activity
		m.mu.Unlock()
		var percent float64
		if msg.Total > 0 {
			percent = float64(msg.Current) / float64(msg.Total)
		}
		cmds = append(cmds, m.overallProgress.SetPercent(percent))
	case PartitionProgressMsg:
		m.applyPartition(msg)
	case TaskFinishedMsg:
		m.mu.Lock()
		m.Outcomes = msg.Outcomes
		m.FatalErr = msg.Err
		m.uiMsgChan = nil
		m.mu.Unlock()
		m.logger.Info("Batch finished.", "duration", msg.EndTime.Sub(msg.StartTime).Round(time.Millisecond))
		m.State = Finished
		if msg.Err != nil {
			m.State = ShowError
		}
		return m, tea.Quit
	case spinner.TickMsg:
		if m.State == Running {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case progress.FrameMsg:
		if m.State == Running {
			progModel, frameCmd := m.overallProgress.Update(msg)
			if newModel, ok := progModel.(progress.Model); ok {
				m.overallProgress = newModel
				cmds = append(cmds, frameCmd)
			}
		}
	}

	if m.uiMsgChan != nil {
		cmds = append(cmds, m.waitForActivityCmd(m.uiMsgChan))
	}
	return m, tea.Batch(cmds...)
}

func (m *AppModel) applyPartition(msg PartitionProgressMsg) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pp, ok := m.partitions[msg.Partition]
	if !ok {
		pp = &PartitionProgress{Partition: msg.Partition}
		m.partitions[msg.Partition] = pp
		m.order = append(m.order, msg.Partition)
	}
	if msg.Status == "Running" && pp.Start.IsZero() {
		pp.Start = time.Now()
	}
	pp.Status = msg.Status
	pp.ErrMsg = msg.ErrMsg
	if msg.Worker > 0 {
		pp.Worker = msg.Worker
	}
	if msg.ElapsedTime > 0 {
		pp.Elapsed = msg.ElapsedTime
	}
}

func (m *AppModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("--- PSC Snapshot Ingestion ---"))
	b.WriteString("\n\n")

	switch m.State {
	case Running, Finished:
		b.WriteString(m.viewProgress())
	case ShowError:
		b.WriteString(m.viewProgress())
		b.WriteString("\n")
		b.WriteString(m.viewError())
	case Exiting:
		b.WriteString(infoStyle.Render("Exiting..."))
	}

	b.WriteString("\n\n")
	if m.State == Running {
		b.WriteString(infoStyle.Render("Processing partitions... 'q' or Ctrl+C to stop."))
	}
	return b.String()
}

// --- View Helpers ---

func (m *AppModel) viewProgress() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var b strings.Builder
	fmt.Fprintf(&b, "%s Partitions %s\n", m.spinner.View(), m.lastActivity)
	b.WriteString(progressBarStyle.Render(m.overallProgress.View()))
	fmt.Fprintf(&b, " (%d/%d)\n\n", m.overallCurrent, m.overallTotal)

	maxLines := max(1, m.termHeight-10)
	startIdx := 0
	if len(m.order) > maxLines {
		startIdx = len(m.order) - maxLines
	}
	if len(m.order) == 0 {
		return b.String()
	}

	b.WriteString(fileProgressHeaderStyle.Render(fmt.Sprintf("%-12s | %-6s | %-10s | %s", "Partition", "Worker", "Status", "Elapsed")))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", m.termWidth))
	b.WriteString("\n")
	for _, id := range m.order[startIdx:] {
		pp := m.partitions[id]
		statusStyled, ok := fileStatusStyle[pp.Status]
		if !ok {
			statusStyled = infoStyle
		}
		elapsedStr := ""
		if pp.Elapsed > 0 {
			elapsedStr = pp.Elapsed.Round(time.Millisecond).String()
		} else if pp.Status == "Running" && !pp.Start.IsZero() {
			elapsedStr = time.Since(pp.Start).Round(time.Second).String() + "..."
		}
		worker := ""
		if pp.Worker > 0 {
			worker = fmt.Sprint(pp.Worker)
		}
		// Pad before styling so the ANSI codes do not break alignment.
		fmt.Fprintf(&b, "%-12s | %-6s | %s | %s\n", id, worker, statusStyled.Render(fmt.Sprintf("%-10s", pp.Status)), elapsedStr)
		if pp.Status == "Error" && pp.ErrMsg != "" {
			errMsg := fmt.Sprintf("  -> Error: %s", pp.ErrMsg)
			if m.termWidth > 1 && len(errMsg) >= m.termWidth {
				errMsg = errMsg[:m.termWidth-1]
			}
			b.WriteString(errorStyle.Render(errMsg))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *AppModel) viewError() string {
	var b strings.Builder
	b.WriteString(errorStyle.Render("Some partitions failed:"))
	b.WriteString("\n\n")
	if m.FatalErr != nil {
		b.WriteString(wrapText(m.FatalErr.Error(), m.termWidth-4))
	} else {
		b.WriteString("Unknown error.")
	}
	b.WriteString("\n")
	return b.String()
}

// --- Task Plumbing ---

func (m *AppModel) waitForActivityCmd(uiMsgChan chan tea.Msg) tea.Cmd {
	if uiMsgChan == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-uiMsgChan
		if !ok {
			return nil
		}
		return msg
	}
}

// startTask launches the batch and a translator from scheduler progress to UI messages.
func (m *AppModel) startTask(uiMsgChan chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		progressCh := make(chan orchestrator.Progress)
		translated := make(chan struct{})
		send := func(msg tea.Msg) {
			select {
			case uiMsgChan <- msg:
			case <-m.ctx.Done():
			}
		}

		go func() {
			defer close(translated)
			var finished int64
			for p := range progressCh {
				if p.Status == orchestrator.StatusDone || p.Status == orchestrator.StatusFailed {
					finished++
					send(NewProgress(finished, m.overallTotal, fmt.Sprintf("%s %s", p.Partition, p.Status)))
				}
				send(NewPartitionProgress(p))
			}
		}()

		go func() {
			defer close(m.done)
			outcomes := m.task(m.ctx, progressCh)
			close(progressCh)
			<-translated
			send(NewTaskFinished(m.taskStartTime, outcomes))
			m.mu.Lock()
			if m.Outcomes == nil {
				m.Outcomes = outcomes
			}
			m.mu.Unlock()
		}()
		return nil
	}
}

// Run shows the progress view until the task returns or the user quits, and
// returns the outcomes. Quitting cancels ctx for partitions not yet started.
func Run(ctx context.Context, ids []partition.ID, task Task, logger *slog.Logger) (map[partition.ID]orchestrator.Outcome, error) {
	m := NewAppModel(ctx, ids, task, logger)
	defer m.cancel()
	if _, err := tea.NewProgram(m).Run(); err != nil {
		m.cancel()
		<-m.done
		return m.Outcomes, fmt.Errorf("progress view: %w", err)
	}
	<-m.done
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Outcomes, nil
}

// --- Helpers ---

func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}
	var result strings.Builder
	var currentLine strings.Builder
	for _, word := range strings.Fields(text) {
		if currentLine.Len() > 0 && currentLine.Len()+len(word)+1 > maxWidth {
			result.WriteString(currentLine.String())
			result.WriteString("\n")
			currentLine.Reset()
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}
	result.WriteString(currentLine.String())
	return result.String()
}
