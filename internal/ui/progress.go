// Package ui renders the generate progress view.
package ui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"rorsk/internal/pipeline"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	idleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// problemRow tracks one problem through pipeline.Stages.
type problemRow struct {
	name    string
	reached int // stages finished
	active  bool
	failed  bool
	detail  string
}

func (r problemRow) finished() bool { return r.failed || r.reached == len(pipeline.Stages) }

type progressModel struct {
	title   string
	events  <-chan pipeline.Event
	spinner spinner.Model
	bar     progress.Model
	rows    []problemRow
	header  string // run-level activity, e.g. "generating f32"
	width   int
	closed  bool
}

type (
	eventMsg  pipeline.Event
	closedMsg struct{}
)

// NewProgressModel returns a Bubble Tea model with one row per problem.
// The model quits when events is closed or on ctrl+c.
func NewProgressModel(title string, problems []string, events <-chan pipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = activeStyle
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 76

	rows := make([]problemRow, len(problems))
	for i, name := range problems {
		rows[i] = problemRow{name: name}
	}
	return &progressModel{title: title, events: events, spinner: sp, bar: bar, rows: rows, width: 80}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.next())
}

func (m *progressModel) next() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m, tea.Batch(m.apply(pipeline.Event(msg)), m.next())
	case closedMsg:
		m.closed = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.header = "interrupted"
			return m, tea.Quit
		}
	case spinner.TickMsg:
		if !m.closed {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.bar.Width = msg.Width - 4
		}
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

// apply folds an event into the rows and returns the bar animation.
func (m *progressModel) apply(ev pipeline.Event) tea.Cmd {
	if ev.Problem == "" {
		switch ev.Status {
		case pipeline.StatusWorking:
			m.header = strings.TrimSpace(stageVerb(ev.Stage) + " " + ev.Detail)
		case pipeline.StatusDone:
			m.header = ""
		}
		return nil
	}
	i := slices.IndexFunc(m.rows, func(r problemRow) bool { return r.name == ev.Problem })
	if i < 0 {
		return nil
	}
	row := &m.rows[i]
	stage := slices.Index(pipeline.Stages, ev.Stage)
	switch ev.Status {
	case pipeline.StatusWorking:
		row.active = true
		row.reached = max(row.reached, stage)
	case pipeline.StatusDone:
		row.active = false
		row.reached = max(row.reached, stage+1)
		if ev.Stage == pipeline.StagePatch {
			row.detail = ev.Detail
		}
	case pipeline.StatusError:
		row.failed, row.active = true, false
		if ev.Err != nil {
			row.detail = ev.Err.Error()
		}
	}
	return m.bar.SetPercent(m.percent())
}

// percent counts finished stages; a failed problem counts as complete.
func (m *progressModel) percent() float64 {
	if len(m.rows) == 0 {
		return 0
	}
	total := 0
	for _, r := range m.rows {
		if r.failed {
			total += len(pipeline.Stages)
		} else {
			total += r.reached
		}
	}
	return float64(total) / float64(len(m.rows)*len(pipeline.Stages))
}

func (m *progressModel) View() string {
	if len(m.rows) == 0 {
		return ""
	}
	header := m.title
	if m.header != "" {
		header += " (" + m.header + ")"
	}
	if m.closed {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")
	nameWidth := 0
	for _, r := range m.rows {
		nameWidth = max(nameWidth, runewidth.StringWidth(r.name))
	}
	trackWidth := 2 * len(pipeline.Stages)
	detailWidth := m.width - nameWidth - trackWidth - 6
	for _, r := range m.rows {
		name := r.name + strings.Repeat(" ", nameWidth-runewidth.StringWidth(r.name))
		fmt.Fprintf(&b, "  %s %s %s\n", name, m.track(r), idleStyle.Render(truncate(r.detail, detailWidth)))
	}
	b.WriteString("\n")
	if m.closed {
		b.WriteString(m.bar.ViewAs(1.0))
	} else {
		b.WriteString(m.bar.View())
	}
	b.WriteString("\n")
	return b.String()
}

// track draws one mark per stage: finished, running, failed or pending.
func (m *progressModel) track(r problemRow) string {
	marks := make([]string, len(pipeline.Stages))
	for i := range pipeline.Stages {
		switch {
		case i < r.reached:
			marks[i] = doneStyle.Render("■")
		case i == r.reached && r.failed:
			marks[i] = failStyle.Render("✗")
		case i == r.reached && r.active:
			marks[i] = activeStyle.Render("▶")
		default:
			marks[i] = idleStyle.Render("·")
		}
	}
	return strings.Join(marks, " ")
}

func stageVerb(stage pipeline.Stage) string {
	switch stage {
	case pipeline.StageVectors:
		return "generating"
	case pipeline.StageCompile:
		return "compiling"
	case pipeline.StageNative:
		return "dispatching"
	case pipeline.StagePatch:
		return "patching"
	case pipeline.StageConformant:
		return "dispatching patched"
	case pipeline.StageWrite:
		return "writing"
	}
	return string(stage)
}

func truncate(value string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	// the tail counts toward width
	return runewidth.Truncate(value, width, "...")
}
