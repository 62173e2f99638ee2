// Package dashboard implements a terminal dashboard polling a queue's live
// stats and rendering them as a table: bubbles/table plus bubbletea and
// lipgloss, with a periodic tea.Tick refresh driving the table.Model.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	countStyle = map[string]lipgloss.Style{
		"waiting":   lipgloss.NewStyle().Foreground(lipgloss.Color("yellow")),
		"running":   lipgloss.NewStyle().Foreground(lipgloss.Color("cyan")).Bold(true),
		"paused":    lipgloss.NewStyle().Foreground(lipgloss.Color("blue")),
		"succeeded": lipgloss.NewStyle().Foreground(lipgloss.Color("green")),
		"failed":    lipgloss.NewStyle().Foreground(lipgloss.Color("red")),
		"cancelled": lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}

	metricStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Source is the live data a dashboard polls. queue.TaskQueue and
// linked.LinkedTaskQueue both satisfy it.
type Source interface {
	Name() string
	Stats() map[string]int
}

// Model is a tea.Model rendering a Source's stats as a refreshing table.
type Model struct {
	source      Source
	maxSlots    int
	table       table.Model
	lastRefresh time.Time
	err         error
}

// New constructs a dashboard Model over source. maxSlots is the queue's
// configured concurrency limit, used only to render a utilization bar.
func New(source Source, maxSlots int) Model {
	columns := []table.Column{
		{Title: "Metric", Width: 24},
		{Title: "Value", Width: 16},
		{Title: "Details", Width: 44},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return Model{source: source, maxSlots: maxSlots, table: t}
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tickCmd() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tickMsg:
		m.refresh()
		m.lastRefresh = time.Now()
		return m, tickCmd()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	stats := m.source.Stats()
	rows := []table.Row{
		{"Total", fmt.Sprintf("%d", stats["total"]), "All tasks tracked by the queue"},
		{"Waiting", m.colored("waiting", stats["waiting"]), "Queued, ready or re-admitted"},
		{"Running", m.colored("running", stats["running"]),
			fmt.Sprintf("Currently executing (%d/%d slots)", stats["running"], m.maxSlots)},
		{"Paused", m.colored("paused", stats["paused"]), "Suspended mid-execution"},
		{"Succeeded", m.colored("succeeded", stats["succeeded"]), "Finished normally"},
		{"Failed", m.colored("failed", stats["failed"]), "Execution or dependency failure"},
		{"Cancelled", m.colored("cancelled", stats["cancelled"]), "Cancelled during execution"},
		{"Utilization", m.utilizationBar(stats["running"]), fmt.Sprintf("%.1f%% of capacity used", m.utilization(stats["running"]))},
	}
	m.table.SetRows(rows)
}

func (m *Model) colored(category string, count int) string {
	style, ok := countStyle[category]
	if !ok {
		return fmt.Sprintf("%d", count)
	}
	return style.Render(fmt.Sprintf("%d", count))
}

func (m *Model) utilization(running int) float64 {
	if m.maxSlots == 0 {
		return 0
	}
	return float64(running) / float64(m.maxSlots) * 100
}

func (m *Model) utilizationBar(running int) string {
	if m.maxSlots == 0 {
		return ""
	}
	pct := m.utilization(running)
	width := 24
	filled := int(float64(width) * pct / 100)

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	var style lipgloss.Style
	switch {
	case pct >= 90:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("red"))
	case pct >= 70:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("yellow"))
	default:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("green"))
	}
	return style.Render(bar)
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Task Queue Dashboard: %s", m.source.Name())))
	b.WriteString("\n\n")

	if m.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
		b.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	}

	b.WriteString(baseStyle.Render(m.table.View()))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render(fmt.Sprintf(
		"Last refresh: %s | Press 'q' to quit",
		m.lastRefresh.Format("15:04:05"),
	)))

	return b.String()
}

// Run starts the dashboard, blocking until the user quits.
func Run(source Source, maxSlots int) error {
	m := New(source, maxSlots)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run dashboard: %w", err)
	}
	return nil
}
