package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/throttlekeep/record"
)

// keyMap defines key bindings shared by the dashboard's interactive views.
type keyMap struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
}

// DashboardModel is a Bubble Tea model rendering a live snapshot of the
// deferred set. It is read-only: it never mutates the records it is
// handed, only re-renders whatever Refresh supplies next.
type DashboardModel struct {
	records  []*record.Record
	cursor   int
	width    int
	height   int
	quitting bool
}

// NewDashboardModel creates a dashboard over an initial deferred-set
// snapshot.
func NewDashboardModel(records []*record.Record) DashboardModel {
	return DashboardModel{records: records}
}

// RefreshMsg carries a new deferred-set snapshot into the running program.
type RefreshMsg struct {
	Records []*record.Record
}

func (m DashboardModel) Init() tea.Cmd {
	return nil
}

func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case RefreshMsg:
		m.records = msg.Records
		if m.cursor >= len(m.records) {
			m.cursor = max(0, len(m.records)-1)
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.records)-1 {
				m.cursor++
			}
		}
	}

	return m, nil
}

func (m DashboardModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Deferred Set (%d)", len(m.records))))
	b.WriteString("\n\n")

	if len(m.records) == 0 {
		b.WriteString(ValueStyle.Render("nothing deferred"))
	} else {
		for i, r := range m.records {
			b.WriteString(m.renderRow(r, i == m.cursor))
			b.WriteString("\n")
		}
	}

	if m.cursor < len(m.records) {
		b.WriteString("\n")
		b.WriteString(BoxStyle.Render(m.renderDetail(m.records[m.cursor])))
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("↑/↓ select · q quit"))
	return b.String()
}

func (m DashboardModel) renderRow(r *record.Record, selected bool) string {
	marker := "  "
	if selected {
		marker = "> "
	}
	sendAt := "?"
	if r.ScheduledSendAt != nil {
		sendAt = time.UnixMilli(*r.ScheduledSendAt).Format("15:04:05")
	}
	row := fmt.Sprintf("%s%-24s count=%-4d send_at=%s", marker, r.Key, r.Count, sendAt)
	if selected {
		return OutcomeStyle("deferred").Render(row)
	}
	return ValueStyle.Render(row)
}

func (m DashboardModel) renderDetail(r *record.Record) string {
	var b strings.Builder
	fields := []struct {
		label string
		value string
	}{
		{"category", r.Category},
		{"id", r.ID},
		{"strategy", r.StrategyType},
		{"count", fmt.Sprintf("%d", r.Count)},
	}
	for _, f := range fields {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(f.label+":"), ValueStyle.Render(f.value)))
	}
	return b.String()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// RunDashboard starts the interactive deferred-set dashboard.
func RunDashboard(records []*record.Record) error {
	p := tea.NewProgram(NewDashboardModel(records), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderDashboardStatic renders the dashboard's current frame without
// starting an interactive program, for non-TTY output.
func RenderDashboardStatic(records []*record.Record) string {
	m := NewDashboardModel(records)
	m.width, m.height = 80, 24
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View())
}
