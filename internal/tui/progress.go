package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"ferrousowl/internal/bootstrap"
)

const (
	tickInterval = 120 * time.Millisecond
	marqueeGap   = "   "
	stageWidth   = 10
	statusWidth  = 8
	detailWidth  = 56
)

// ErrInterrupted is returned when the user quits before the work finished.
var ErrInterrupted = errors.New("interrupted")

var spinnerFrames = spinner.MiniDot.Frames

// Stage row states.
const (
	statusPending = "pending"
	statusRunning = "running"
	statusDone    = "done"
	statusFailed  = "failed"
)

type tickMsg time.Time

type stageRow struct {
	stage  bootstrap.Stage
	status string
	detail string
}

// ProgressModel renders one row per resolver stage.
type ProgressModel struct {
	title string
	rows  []stageRow
	index map[bootstrap.Stage]int

	done        bool
	interrupted bool
	err         error
	tick        int
}

// NewProgressModel creates a model with a pending row for each stage.
func NewProgressModel(title string, stages []bootstrap.Stage) ProgressModel {
	m := ProgressModel{
		title: title,
		index: make(map[bootstrap.Stage]int, len(stages)),
	}
	for _, s := range stages {
		m.index[s] = len(m.rows)
		m.rows = append(m.rows, stageRow{stage: s, status: statusPending})
	}
	return m
}

func scheduleTick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m ProgressModel) Init() tea.Cmd {
	return scheduleTick()
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.tick++
		if m.done {
			return m, nil
		}
		return m, scheduleTick()

	case EventMsg:
		m.apply(bootstrap.Event(msg))
		return m, nil

	case WorkDoneMsg:
		m.done = true
		return m, tea.Quit

	case ErrorMsg:
		m.err = msg.Err
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.done = true
			m.interrupted = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *ProgressModel) apply(e bootstrap.Event) {
	idx, ok := m.index[e.Stage]
	if !ok {
		return
	}
	row := &m.rows[idx]
	row.status = statusFor(e.Kind)
	if msg := strings.TrimSpace(e.Message); msg != "" {
		row.detail = msg
	}
}

func statusFor(kind bootstrap.EventKind) string {
	switch kind {
	case bootstrap.EventCompleted:
		return statusDone
	case bootstrap.EventFailed:
		return statusFailed
	default:
		return statusRunning
	}
}

func (m ProgressModel) View() string {
	if m.done && m.err != nil {
		return fmt.Sprintf("Error: %v\n", m.err)
	}

	var b strings.Builder
	if m.title != "" {
		b.WriteString(HeaderStyle.Render(m.title))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "%s  %s  %s\n",
		HeaderStyle.Render(pad("STAGE", stageWidth)),
		HeaderStyle.Render(pad("STATUS", statusWidth)),
		HeaderStyle.Render("DETAIL"))

	for _, row := range m.rows {
		// Stages that never ran are noise once everything is finished.
		if m.done && row.status == statusPending {
			continue
		}
		detail := row.detail
		if !m.done && row.status == statusRunning && len(detail) > detailWidth {
			detail = marqueeText(detail, detailWidth, m.tick)
		} else {
			detail = TruncateWithEllipsis(detail, detailWidth)
		}
		fmt.Fprintf(&b, "%s  %s  %s\n",
			pad(string(row.stage), stageWidth),
			StatusStyle(row.status).Render(pad(row.status, statusWidth)),
			detail)
	}

	if !m.done {
		finished, total := m.progressCounts()
		frame := spinnerFrames[m.tick%len(spinnerFrames)]
		fmt.Fprintf(&b, "\n%s Resolving ferrous-owl (%d/%d stages)...\n", frame, finished, total)
	}
	return b.String()
}

// progressCounts returns how many stages have finished out of those that
// have started.
func (m ProgressModel) progressCounts() (int, int) {
	finished, total := 0, 0
	for _, row := range m.rows {
		if row.status == statusPending {
			continue
		}
		total++
		if row.status == statusDone || row.status == statusFailed {
			finished++
		}
	}
	return finished, total
}

func (m ProgressModel) Done() bool {
	return m.done
}

// Err returns the fatal error, or ErrInterrupted when the user quit early.
func (m ProgressModel) Err() error {
	if m.err != nil {
		return m.err
	}
	if m.interrupted {
		return ErrInterrupted
	}
	return nil
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// marqueeText scrolls text that is wider than width by one column per tick.
func marqueeText(text string, width, tick int) string {
	text = strings.TrimSpace(text)
	if width <= 0 {
		return ""
	}
	if len(text) <= width {
		return text
	}
	cycle := text + marqueeGap
	offset := tick % len(cycle)
	var out strings.Builder
	out.Grow(width)
	for i := 0; i < width; i++ {
		out.WriteByte(cycle[(offset+i)%len(cycle)])
	}
	return out.String()
}

// NonEmptyOrDash returns "-" for empty or whitespace strings.
func NonEmptyOrDash(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}

// TruncateWithEllipsis truncates a string and adds "..." if it exceeds max length.
func TruncateWithEllipsis(value string, max int) string {
	if max <= 0 {
		return ""
	}
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}
