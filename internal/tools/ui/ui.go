package ui

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	spinnerChars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
)

type doneMsg struct {
	details []string
	err     error
}

type tickMsg struct{}

type model struct {
	title   string
	frame   int
	done    bool
	details []string
	err     error
	cancel  context.CancelFunc
}

// Run executes fn with a terminal spinner and returns its details once it
// finishes. Ctrl+C cancels the underlying context.
func Run(title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := model{title: title, cancel: cancel}
	p := tea.NewProgram(m)

	go func() {
		details, err := fn(ctx)
		p.Send(doneMsg{details: details, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	fm := final.(model)
	return fm.details, fm.err
}

func (m model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancel()
			return m, tea.Quit
		}
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerChars)
		return m, tick()
	case doneMsg:
		m.done = true
		m.details = msg.details
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	if !m.done {
		b.WriteString(spinnerChars[m.frame] + " ")
		b.WriteString(titleStyle.Render(m.title))
		b.WriteString("\n")
		return b.String()
	}
	if m.err != nil {
		b.WriteString(failStyle.Render("✗ " + m.title + ": " + m.err.Error()))
	} else {
		b.WriteString(okStyle.Render("✓ " + m.title))
	}
	b.WriteString("\n")
	for _, d := range m.details {
		b.WriteString(detailStyle.Render("  · "+d) + "\n")
	}
	return b.String()
}
