package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/digital-iq/llm-report/internal/orchestrator"
	"github.com/digital-iq/llm-report/pkg/models"
)

// Section statuses shown in the view.
const (
	StatusRouting   = "routing"
	StatusEmulating = "emulating"
	StatusWriting   = "writing"
	StatusDone      = "done"
	StatusFailed    = "failed"
)

// SectionState is the display state of one subtask.
type SectionState struct {
	Index  int
	Title  string
	Status string
	Error  string
}

// RunState tracks the progress of one run.
type RunState struct {
	RunID    string
	Request  string
	Phase    orchestrator.Phase
	Total    int
	Sections []SectionState
	Result   string
	Error    string
	// Artifacts is set once the run record arrives.
	Artifacts *models.ArtifactRefs
}

// Apply folds a phase event into the state.
func (s *RunState) Apply(ev orchestrator.PhaseEvent) {
	if ev.RunID != "" {
		s.RunID = ev.RunID
	}
	if ev.Total > 0 {
		s.Total = ev.Total
	}
	s.Phase = ev.Phase

	switch ev.Phase {
	case orchestrator.PhaseRouting:
		s.settleCurrent()
		s.Sections = append(s.Sections, SectionState{Index: ev.Index, Title: ev.Title, Status: StatusRouting})
	case orchestrator.PhaseEmulating:
		s.setCurrent(StatusEmulating)
	case orchestrator.PhaseDelegating:
		s.setCurrent(StatusWriting)
	case orchestrator.PhaseAssembling, orchestrator.PhaseDone:
		s.settleCurrent()
	case orchestrator.PhaseFailed:
		if ev.Error != nil {
			s.Error = ev.Error.Error()
		}
	}
}

// Reconcile replaces the inferred section states with the record's outcomes.
func (s *RunState) Reconcile(rec *models.RunRecord) {
	if rec == nil {
		return
	}
	s.RunID = rec.ID
	s.Result = rec.Result
	s.Artifacts = rec.Artifacts
	if rec.Error != "" {
		s.Error = rec.Error
	}
	if rec.Failed() {
		s.Phase = orchestrator.PhaseFailed
	} else {
		s.Phase = orchestrator.PhaseDone
	}

	sections := make([]SectionState, 0, len(rec.Outcomes))
	for _, o := range rec.Outcomes {
		st := SectionState{Index: o.Index, Title: o.Title, Status: StatusDone}
		if o.Failed() {
			st.Status = StatusFailed
			st.Error = o.Error
		}
		sections = append(sections, st)
	}
	s.Sections = sections
	s.Total = len(sections)
}

// Completed returns the number of sections that reached a final status.
func (s RunState) Completed() int {
	n := 0
	for _, sec := range s.Sections {
		if sec.Status == StatusDone || sec.Status == StatusFailed {
			n++
		}
	}
	return n
}

func (s *RunState) setCurrent(status string) {
	if len(s.Sections) == 0 {
		return
	}
	s.Sections[len(s.Sections)-1].Status = status
}

// settleCurrent marks the in-flight section finished. Its real outcome is
// known only from the record.
func (s *RunState) settleCurrent() {
	if len(s.Sections) == 0 {
		return
	}
	last := &s.Sections[len(s.Sections)-1]
	if last.Status != StatusDone && last.Status != StatusFailed {
		last.Status = StatusDone
	}
}

// PhaseMsg carries a run phase event into the program.
type PhaseMsg struct {
	Event orchestrator.PhaseEvent
}

// RunDoneMsg is sent when the run returns.
type RunDoneMsg struct {
	Record *models.RunRecord
	Err    error
}

// Observer returns a PhaseObserver forwarding events to send, typically
// (*tea.Program).Send.
func Observer(send func(tea.Msg)) orchestrator.PhaseObserver {
	return func(ev orchestrator.PhaseEvent) {
		send(PhaseMsg{Event: ev})
	}
}

// RunView renders a RunState.
type RunView struct {
	state  RunState
	width  int
	height int

	// Styles
	headerStyle   lipgloss.Style
	labelStyle    lipgloss.Style
	valueStyle    lipgloss.Style
	progressFull  lipgloss.Style
	progressEmpty lipgloss.Style
	phaseStyle    lipgloss.Style
	dimStyle      lipgloss.Style
	failedStyle   lipgloss.Style
	doneStyle     lipgloss.Style
	activeStyle   lipgloss.Style
}

// NewRunView creates a new RunView instance.
func NewRunView() *RunView {
	return &RunView{
		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		progressFull: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		progressEmpty: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		phaseStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true),

		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		failedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),

		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		activeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
	}
}

// SetState replaces the displayed state.
func (v *RunView) SetState(state RunState) {
	v.state = state
}

// GetState returns the displayed state.
func (v *RunView) GetState() RunState {
	return v.state
}

// SetSize sets the view dimensions.
func (v *RunView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// View renders the run progress display.
func (v *RunView) View() string {
	var b strings.Builder

	b.WriteString(v.headerStyle.Render("Report Progress"))
	b.WriteString("\n")

	if v.state.Request != "" {
		b.WriteString(v.labelStyle.Render("Request:"))
		b.WriteString(v.valueStyle.Render(truncate(v.state.Request, 60)))
		b.WriteString("\n")
	}
	if v.state.RunID != "" {
		b.WriteString(v.labelStyle.Render("Run:"))
		b.WriteString(v.dimStyle.Render(v.state.RunID))
		b.WriteString("\n")
	}

	phase := string(v.state.Phase)
	if phase == "" {
		phase = "starting"
	}
	b.WriteString(v.labelStyle.Render("Phase:"))
	b.WriteString(v.phaseStyle.Render(phase))
	b.WriteString("\n")

	pct := float64(0)
	if v.state.Total > 0 {
		pct = float64(v.state.Completed()) / float64(v.state.Total) * 100
	}
	b.WriteString(v.labelStyle.Render("Sections:"))
	b.WriteString(v.valueStyle.Render(fmt.Sprintf("%d/%d", v.state.Completed(), v.state.Total)))
	b.WriteString("\n")
	b.WriteString(v.renderProgressBar(pct, 30))
	b.WriteString("\n")

	if len(v.state.Sections) > 0 {
		b.WriteString("\n")
		for _, sec := range v.state.Sections {
			b.WriteString(v.renderSection(sec))
			b.WriteString("\n")
		}
	}

	if v.state.Artifacts != nil {
		b.WriteString("\n")
		b.WriteString(v.labelStyle.Render("Source:"))
		b.WriteString(v.state.Artifacts.SourceRef)
		b.WriteString("\n")
		b.WriteString(v.labelStyle.Render("Rendered:"))
		b.WriteString(v.state.Artifacts.RenderedRef)
		b.WriteString("\n")
	}
	if v.state.Result != "" {
		b.WriteString("\n")
		b.WriteString(v.doneStyle.Render(v.state.Result))
		b.WriteString("\n")
	}
	if v.state.Error != "" {
		b.WriteString("\n")
		b.WriteString(v.failedStyle.Render("Error: " + v.state.Error))
		b.WriteString("\n")
	}

	return b.String()
}

func (v *RunView) renderSection(sec SectionState) string {
	style := v.activeStyle
	symbol := "•"
	switch sec.Status {
	case StatusDone:
		style, symbol = v.doneStyle, "✓"
	case StatusFailed:
		style, symbol = v.failedStyle, "✗"
	}
	line := fmt.Sprintf("  %s %d. %s %s",
		style.Render(symbol), sec.Index, truncate(sec.Title, 48), v.dimStyle.Render(sec.Status))
	if sec.Error != "" {
		line += "\n      " + v.failedStyle.Render(truncate(sec.Error, 70))
	}
	return line
}

// renderProgressBar renders a progress bar.
func (v *RunView) renderProgressBar(pct float64, width int) string {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}

	filled := int(pct / 100 * float64(width))
	empty := width - filled

	bar := v.progressFull.Render(strings.Repeat("█", filled)) +
		v.progressEmpty.Render(strings.Repeat("░", empty))

	return fmt.Sprintf("  %s %.0f%%", bar, pct)
}

// LogEntry is one line of the activity log.
type LogEntry struct {
	Timestamp time.Time
	Phase     orchestrator.Phase
	Message   string
}

// maxLogLines bounds the activity log shown.
const maxLogLines = 8

// RunApp is the bubbletea model for the run command.
type RunApp struct {
	view     *RunView
	spinner  spinner.Model
	logs     []LogEntry
	quitting bool
	done     bool
	err      error

	// Styles
	logStyle     lipgloss.Style
	logTimeStyle lipgloss.Style
	errorStyle   lipgloss.Style
	doneStyle    lipgloss.Style
}

// NewRunApp creates a RunApp for request.
func NewRunApp(request string) *RunApp {
	view := NewRunView()
	view.SetState(RunState{Request: request})
	return &RunApp{
		view: view,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("205"))),
		),

		logStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),

		logTimeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true),
	}
}

// Init implements tea.Model.
func (a *RunApp) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *RunApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !a.done {
				a.quitting = true
			}
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.view.SetSize(msg.Width, msg.Height)

	case PhaseMsg:
		state := a.view.GetState()
		state.Apply(msg.Event)
		a.view.SetState(state)
		a.logs = append(a.logs, LogEntry{
			Timestamp: msg.Event.Timestamp,
			Phase:     msg.Event.Phase,
			Message:   describe(msg.Event),
		})

	case RunDoneMsg:
		a.done = true
		a.err = msg.Err
		state := a.view.GetState()
		state.Reconcile(msg.Record)
		a.view.SetState(state)

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

// View implements tea.Model.
func (a *RunApp) View() string {
	if a.quitting {
		return "Run cancelled.\n"
	}

	var b strings.Builder

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Render("=== llmreport ===")
	b.WriteString(header)
	b.WriteString("\n\n")

	b.WriteString(a.view.View())
	b.WriteString("\n")

	b.WriteString(a.renderLogs())

	b.WriteString("\n")
	if a.done {
		if a.err != nil {
			b.WriteString(a.errorStyle.Render(fmt.Sprintf("Error: %v", a.err)))
		} else {
			b.WriteString(a.doneStyle.Render("Report complete! Press q to exit."))
		}
	} else {
		b.WriteString(a.spinner.View())
		b.WriteString(" ")
		b.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Render("Press q to cancel"))
	}
	b.WriteString("\n")

	return b.String()
}

// Cancelled reports whether the user quit before the run finished.
func (a *RunApp) Cancelled() bool {
	return a.quitting
}

// State returns the current run state.
func (a *RunApp) State() RunState {
	return a.view.GetState()
}

// renderLogs renders the recent log entries.
func (a *RunApp) renderLogs() string {
	if len(a.logs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("252")).
		Render("Activity Log"))
	b.WriteString("\n")

	start := 0
	if len(a.logs) > maxLogLines {
		start = len(a.logs) - maxLogLines
	}

	for _, entry := range a.logs[start:] {
		ts := a.logTimeStyle.Render(entry.Timestamp.Format("15:04:05"))
		phase := lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Width(12).
			Render(string(entry.Phase))
		msg := a.logStyle.Render(entry.Message)
		b.WriteString(fmt.Sprintf("  %s %s %s\n", ts, phase, msg))
	}

	return b.String()
}

func describe(ev orchestrator.PhaseEvent) string {
	switch ev.Phase {
	case orchestrator.PhaseDecomposing:
		return "Decomposing request"
	case orchestrator.PhaseRouting:
		return fmt.Sprintf("[%d/%d] %s", ev.Index, ev.Total, ev.Title)
	case orchestrator.PhaseEmulating:
		return fmt.Sprintf("Emulating section %d", ev.Index)
	case orchestrator.PhaseDelegating:
		return fmt.Sprintf("Writing section %d", ev.Index)
	case orchestrator.PhaseAssembling:
		return "Assembling document"
	case orchestrator.PhaseDone:
		return "Done"
	case orchestrator.PhaseFailed:
		if ev.Error != nil {
			return "Failed: " + ev.Error.Error()
		}
		return "Failed"
	}
	return string(ev.Phase)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// NewRunProgram creates a new Bubbletea program for the run TUI.
func NewRunProgram(request string, opts ...tea.ProgramOption) (*tea.Program, *RunApp) {
	app := NewRunApp(request)
	p := tea.NewProgram(app, opts...)
	return p, app
}
