package cli

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nishio/ai-project-manager/internal/core"
	"github.com/nishio/ai-project-manager/pkg/models"
)

// Dashboard panel indices.
const (
	panelStatus = iota
	panelWork
	panelAlerts
	panelCount
)

// maxListed caps the rows shown per list in the work panel.
const maxListed = 10

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	load func() tea.Msg

	statusCounts map[string]int
	pool         core.PoolStatus
	executable   []string
	blocked      []blockedSnapshot
	cycle        string
	alerts       []alertSnapshot

	loading bool
	err     error
}

type blockedSnapshot struct {
	id     string
	reason string
}

type alertSnapshot struct {
	severity string
	message  string
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	statusCounts map[string]int
	pool         core.PoolStatus
	executable   []string
	blocked      []blockedSnapshot
	cycle        string
	alerts       []alertSnapshot
	err          error
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	statusOpen       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statusBlocked    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusDone       = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel(load func() tea.Msg) dashboardModel {
	return dashboardModel{
		activePanel:  panelStatus,
		load:         load,
		loading:      true,
		statusCounts: make(map[string]int),
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return m.load
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, m.load
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.statusCounts = msg.statusCounts
		m.pool = msg.pool
		m.executable = msg.executable
		m.blocked = msg.blocked
		m.cycle = msg.cycle
		m.alerts = msg.alerts
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" apm Dashboard ")
	help := helpStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading backlog...\n\n%s", title, help)
	}
	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	panels := []string{m.renderStatusPanel(), m.renderWorkPanel(), m.renderAlertsPanel()}
	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		colWidth := availableWidth / 3
		for i := range panels {
			panels[i] = m.applyPanelStyle(i, panels[i], colWidth-4)
		}
		body = lipgloss.JoinHorizontal(lipgloss.Top, panels...)
	} else {
		panelWidth := max(availableWidth-4, 20)
		for i := range panels {
			panels[i] = m.applyPanelStyle(i, panels[i], panelWidth)
		}
		body = lipgloss.JoinVertical(lipgloss.Left, panels...)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderStatusPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Status"))
	b.WriteString("\n")

	total := 0
	for _, s := range models.AllStatuses {
		count := m.statusCounts[string(s)]
		total += count
		b.WriteString(styleForStatus(s).Render(fmt.Sprintf("  %-14s %d", s, count)))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n  Total: %d", total)
	fmt.Fprintf(&b, "\n  IDs:   %d/%d (%.1f%%)", m.pool.Used, m.pool.Total, m.pool.Usage*100)
	return b.String()
}

func (m dashboardModel) renderWorkPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Work"))
	b.WriteString("\n")

	if m.cycle != "" {
		b.WriteString(statusBlocked.Render("  " + m.cycle))
		return b.String()
	}

	fmt.Fprintf(&b, "  Executable (%d)\n", len(m.executable))
	for i, id := range m.executable {
		if i == maxListed {
			fmt.Fprintf(&b, "    ... %d more\n", len(m.executable)-maxListed)
			break
		}
		fmt.Fprintf(&b, "    %s\n", id)
	}
	fmt.Fprintf(&b, "\n  Blocked (%d)\n", len(m.blocked))
	for i, bl := range m.blocked {
		if i == maxListed {
			fmt.Fprintf(&b, "    ... %d more\n", len(m.blocked)-maxListed)
			break
		}
		fmt.Fprintf(&b, "    %s %s\n", statusBlocked.Render(bl.id), bl.reason)
	}
	return b.String()
}

func (m dashboardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts {
		sev := styleForSeverity(a.severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(a.severity)))
		fmt.Fprintf(&b, "  %s %s\n", sev, a.message)
	}
	fmt.Fprintf(&b, "\n  Total: %d alert(s)", len(m.alerts))
	return b.String()
}

func styleForStatus(status models.TaskStatus) lipgloss.Style {
	switch status {
	case models.StatusOpen:
		return statusOpen
	case models.StatusInProgress:
		return statusInProgress
	case models.StatusBlocked:
		return statusBlocked
	case models.StatusDone:
		return statusDone
	default:
		return lipgloss.NewStyle()
	}
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "high":
		return severityHigh
	case "medium":
		return severityMedium
	case "low":
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

// loadDashboardData reads the backlog, its analysis and the active alerts.
// A dependency cycle is shown in the work panel rather than failing the load.
func loadDashboardData() tea.Msg {
	result := dataLoadedMsg{statusCounts: make(map[string]int)}
	if Backlog == nil {
		result.err = fmt.Errorf("backlog service not initialized")
		return result
	}

	stats, err := Backlog.Stats()
	if err != nil {
		result.err = fmt.Errorf("loading backlog: %w", err)
		return result
	}
	result.statusCounts = stats.ByStatus
	result.pool = stats.Pool

	report, err := Backlog.Analyze()
	switch {
	case errors.Is(err, core.ErrCyclicDependency):
		result.cycle = err.Error()
	case err != nil:
		result.err = fmt.Errorf("analyzing dependencies: %w", err)
		return result
	default:
		result.executable = report.Executable
		for _, bt := range report.Blocked {
			reason := ""
			if len(bt.Reasons) > 0 {
				reason = describeReason(bt.Reasons[0])
			}
			result.blocked = append(result.blocked, blockedSnapshot{id: bt.TaskID, reason: reason})
		}
	}

	if AlertEngine != nil {
		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			result.err = fmt.Errorf("loading alerts: %w", err)
			return result
		}
		for _, a := range alerts {
			result.alerts = append(result.alerts, alertSnapshot{severity: string(a.Severity), message: a.Message})
		}
	}

	return result
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for the backlog",
	Long: `Launch an interactive terminal dashboard showing status counts, ID pool
usage, executable and blocked tasks, and active alerts.

Navigate between panels with Tab, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}
		p := tea.NewProgram(newDashboardModel(loadDashboardData), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
